package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/coordinator"
	"github.com/dreamware/tessera/internal/replication"
	"github.com/dreamware/tessera/internal/tablets"
)

type server struct {
	localHost cluster.HostID
	dir       *cluster.Directory
	coord     *coordinator.Coordinator
	monitor   *coordinator.HealthMonitor
	log       *slog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/tables", s.handleTables)
	mux.HandleFunc("/endpoints", s.handleEndpoints)
	mux.HandleFunc("/tablets", s.handleTablets)
	mux.HandleFunc("/migrations", s.handleStartMigration)
	mux.HandleFunc("/migrations/finish", s.handleFinishMigration)
	mux.HandleFunc("/migrations/abort", s.handleAbortMigration)
	return mux
}

// statusOf maps the domain sentinels onto HTTP statuses. Anything
// unrecognized is the caller's fault.
func statusOf(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrUnknownTable),
		errors.Is(err, tablets.ErrNoTabletMap),
		errors.Is(err, cluster.ErrUnknownHost):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrTableExists),
		errors.Is(err, coordinator.ErrMigrationInProgress),
		errors.Is(err, coordinator.ErrReplicaExists),
		errors.Is(err, cluster.ErrDuplicateEndpoint):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusOf(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	host := cluster.NewHostID()
	if req.HostID != "" {
		parsed, err := cluster.ParseHostID(req.HostID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		host = parsed
	}
	n := cluster.NodeInfo{Host: host, Addr: cluster.Endpoint(req.Addr), Up: true}
	if err := s.dir.AddNode(n); err != nil {
		s.writeError(w, err)
		return
	}
	s.coord.RefreshTopology()
	s.log.Info("node registered", "host", host, "addr", req.Addr)

	writeJSON(w, http.StatusCreated, cluster.RegisterResponse{HostID: host})
}

func (s *server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}{Nodes: s.dir.Nodes()})
}

type createTableRequest struct {
	Table             string              `json:"table,omitempty"`
	ReplicationFactor int                 `json:"replication_factor"`
	Options           replication.Options `json:"options,omitempty"`
}

func (s *server) handleTables(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createTable(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, struct {
			Tables []tablets.TableID `json:"tables"`
		}{Tables: s.coord.Tables()})
	case http.MethodDelete:
		table, err := tableParam(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.coord.DropTable(table); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) createTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	table := tablets.NewTableID()
	if req.Table != "" {
		parsed, err := tablets.ParseTableID(req.Table)
		if err != nil {
			s.writeError(w, err)
			return
		}
		table = parsed
	}
	if req.Options == nil {
		req.Options = replication.Options{}
	}

	if err := s.coord.CreateTable(table, req.ReplicationFactor, req.Options); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Table tablets.TableID `json:"table"`
	}{Table: table})
}

func tableParam(r *http.Request) (tablets.TableID, error) {
	return tablets.ParseTableID(r.URL.Query().Get("table"))
}

type endpointsResponse struct {
	Natural []cluster.Endpoint `json:"natural"`
	Pending []cluster.Endpoint `json:"pending,omitempty"`
}

func (s *server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	table, err := tableParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	token, err := strconv.ParseInt(r.URL.Query().Get("token"), 10, 64)
	if err != nil {
		http.Error(w, "bad token", http.StatusBadRequest)
		return
	}

	m, err := s.coord.ReplicationMap(table)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tok := tablets.Token(token)
	writeJSON(w, http.StatusOK, endpointsResponse{
		Natural: m.NaturalEndpoints(tok),
		Pending: m.PendingEndpoints(tok),
	})
}

type tabletResponse struct {
	ID        uint64             `json:"id"`
	LastToken tablets.Token      `json:"last_token"`
	Replicas  tablets.ReplicaSet `json:"replicas"`
	Pending   *tablets.Replica   `json:"pending,omitempty"`
}

func (s *server) handleTablets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	table, err := tableParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tmap, err := s.coord.Snapshot().Tablets().TabletMap(table)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var out []tabletResponse
	for id := range tmap.IDs() {
		entry := tabletResponse{
			ID:        uint64(id),
			LastToken: tmap.LastToken(id),
			Replicas:  tmap.TabletInfo(id).Replicas,
		}
		if ti, ok := tmap.Transition(id); ok {
			pending := ti.Pending
			entry.Pending = &pending
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, struct {
		Table   tablets.TableID  `json:"table"`
		Tablets []tabletResponse `json:"tablets"`
	}{Table: table, Tablets: out})
}

type migrationRequest struct {
	Table  string          `json:"table"`
	Tablet uint64          `json:"tablet"`
	Host   string          `json:"host,omitempty"`
	Shard  cluster.ShardID `json:"shard,omitempty"`
}

func (s *server) migrationParams(w http.ResponseWriter, r *http.Request) (migrationRequest, tablets.TableID, bool) {
	var req migrationRequest
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return req, tablets.TableID{}, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return req, tablets.TableID{}, false
	}
	table, err := tablets.ParseTableID(req.Table)
	if err != nil {
		s.writeError(w, err)
		return req, tablets.TableID{}, false
	}
	return req, table, true
}

func (s *server) handleStartMigration(w http.ResponseWriter, r *http.Request) {
	req, table, ok := s.migrationParams(w, r)
	if !ok {
		return
	}
	host, err := cluster.ParseHostID(req.Host)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dst := tablets.Replica{Host: host, Shard: req.Shard}
	if err := s.coord.StartMigration(table, tablets.ID(req.Tablet), dst); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleFinishMigration(w http.ResponseWriter, r *http.Request) {
	req, table, ok := s.migrationParams(w, r)
	if !ok {
		return
	}
	if err := s.coord.FinishMigration(table, tablets.ID(req.Tablet)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAbortMigration(w http.ResponseWriter, r *http.Request) {
	req, table, ok := s.migrationParams(w, r)
	if !ok {
		return
	}
	if err := s.coord.AbortMigration(table, tablets.ID(req.Tablet)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
