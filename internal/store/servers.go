package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

const (
	serversTable       = "servers"
	serverMembersTable = "server_members"
)

var defaultChannels = []NewChannel{
	{Name: "general", ChannelType: "text", Description: "General discussion"},
	{Name: "announcements", ChannelType: "text", Description: "Server announcements"},
	{Name: "General Voice", ChannelType: "voice", Description: "General voice chat"},
}

// CreateServer creates a server owned by ownerID, makes the owner its only
// member and seeds the default roles and channels in one transaction.
func (s *Store) CreateServer(ctx context.Context, ownerID string, ns NewServer) (*Server, error) {
	now := s.timestamp()
	srv := &Server{
		ServerID:    s.newID(),
		Name:        ns.Name,
		Description: ns.Description,
		Icon:        ns.Icon,
		OwnerID:     ownerID,
		CreatedAt:   now,
		Roles: []Role{
			{RoleID: s.newID(), Name: "Admin", Permissions: []string{"all"}, Color: "#ff6b6b", Members: []string{ownerID}},
			{RoleID: s.newID(), Name: "Member", Permissions: []string{"read", "write"}, Color: "#4ecdc4", Members: []string{}},
		},
		Members:  []string{ownerID},
		Channels: make([]string, 0, len(defaultChannels)),
	}
	roles, err := json.Marshal(srv.Roles)
	if err != nil {
		return nil, fmt.Errorf("store: encode roles: %w", err)
	}
	srv.RolesJSON = string(roles)

	err = s.db.WithTx(func(tx *goqu.TxDatabase) error {
		err := execInsert(ctx, tx.Insert(serversTable).Rows(goqu.Record{
			"server_id":   srv.ServerID,
			"name":        srv.Name,
			"description": srv.Description,
			"icon":        srv.Icon,
			"owner_id":    srv.OwnerID,
			"roles":       srv.RolesJSON,
			"created_at":  srv.CreatedAt,
		}))
		if err != nil {
			return err
		}

		err = execInsert(ctx, tx.Insert(serverMembersTable).Rows(goqu.Record{
			"server_id": srv.ServerID,
			"user_id":   ownerID,
			"joined_at": now,
		}))
		if err != nil {
			return err
		}

		for i, dc := range defaultChannels {
			channelID := s.newID()
			err = execInsert(ctx, tx.Insert(channelsTable).Rows(goqu.Record{
				"channel_id":   channelID,
				"server_id":    srv.ServerID,
				"name":         dc.Name,
				"channel_type": dc.ChannelType,
				"description":  dc.Description,
				"position":     i,
				"created_at":   now,
			}))
			if err != nil {
				return err
			}
			srv.Channels = append(srv.Channels, channelID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: create server: %w", err)
	}
	return srv, nil
}

func (s *Store) ServerByID(ctx context.Context, serverID string) (*Server, error) {
	var srv Server
	found, err := s.db.From(serversTable).Where(goqu.C("server_id").Eq(serverID)).ScanStructContext(ctx, &srv)
	if err != nil {
		return nil, fmt.Errorf("store: find server: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	if err := s.hydrateServer(ctx, &srv); err != nil {
		return nil, err
	}
	return &srv, nil
}

// ServersForUser lists the servers userID is a persisted member of.
func (s *Store) ServersForUser(ctx context.Context, userID string) ([]Server, error) {
	servers := []Server{}
	err := s.db.From(serversTable).
		Where(goqu.C("server_id").In(
			s.db.From(serverMembersTable).Select("server_id").Where(goqu.C("user_id").Eq(userID)),
		)).
		Order(goqu.C("created_at").Asc()).
		ScanStructsContext(ctx, &servers)
	if err != nil {
		return nil, fmt.Errorf("store: list servers: %w", err)
	}
	for i := range servers {
		if err := s.hydrateServer(ctx, &servers[i]); err != nil {
			return nil, err
		}
	}
	return servers, nil
}

func (s *Store) IsMember(ctx context.Context, serverID, userID string) (bool, error) {
	n, err := s.db.From(serverMembersTable).
		Where(goqu.C("server_id").Eq(serverID), goqu.C("user_id").Eq(userID)).
		CountContext(ctx)
	if err != nil {
		return false, fmt.Errorf("store: membership: %w", err)
	}
	return n > 0, nil
}

func (s *Store) hydrateServer(ctx context.Context, srv *Server) error {
	if err := json.Unmarshal([]byte(srv.RolesJSON), &srv.Roles); err != nil {
		return fmt.Errorf("store: decode roles for %s: %w", srv.ServerID, err)
	}

	srv.Members = []string{}
	err := s.db.From(serverMembersTable).
		Select("user_id").
		Where(goqu.C("server_id").Eq(srv.ServerID)).
		Order(goqu.C("joined_at").Asc()).
		ScanValsContext(ctx, &srv.Members)
	if err != nil {
		return fmt.Errorf("store: server members: %w", err)
	}

	srv.Channels = []string{}
	err = s.db.From(channelsTable).
		Select("channel_id").
		Where(goqu.C("server_id").Eq(srv.ServerID)).
		Order(goqu.C("position").Asc()).
		ScanValsContext(ctx, &srv.Channels)
	if err != nil {
		return fmt.Errorf("store: server channels: %w", err)
	}
	return nil
}
