package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	xerrors "walletlink/internal/errors"
	"walletlink/internal/journal"
	"walletlink/internal/network"
	"walletlink/internal/wallet"
)

// sessionResponse 在快照之外附带 Provider 是否存在与链名称。
type sessionResponse struct {
	wallet.Session
	ProviderAvailable bool   `json:"providerAvailable"`
	ChainLabel        string `json:"chainLabel,omitempty"`
}

type switchNetworkRequest struct {
	ChainID uint64 `json:"chainId"`
}

// networkView 为网络选择器的一项，未注册的链只有名称。
type networkView struct {
	ChainID    uint64              `json:"chainId"`
	Label      string              `json:"label"`
	Registered bool                `json:"registered"`
	Descriptor *network.Descriptor `json:"descriptor,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionView())
}

// handleConnect 阻塞至钱包答复，返回最终快照。
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.wallet.Connect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.wallet.Disconnect()
	writeJSON(w, http.StatusOK, s.sessionView())
}

// handleSwitchNetwork 只发起切换请求，链变化通过 stream 推送。
func (s *Server) handleSwitchNetwork(w http.ResponseWriter, r *http.Request) {
	var req switchNetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if err := s.wallet.SwitchNetwork(r.Context(), req.ChainID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sessionView())
}

func (s *Server) handleNetworks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, networkViews(s.wallet.Registry()))
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := journal.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为正整数"))
			return
		}
		limit = parsed
	}
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []journal.Entry{})
		return
	}
	entries, err := s.journal.ListLatest(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) sessionView() sessionResponse {
	return s.viewOf(s.wallet.Session())
}

func (s *Server) viewOf(session wallet.Session) sessionResponse {
	view := sessionResponse{Session: session, ProviderAvailable: s.wallet.Available()}
	if session.HasChain() {
		view.ChainLabel = network.Label(session.ChainID)
	}
	return view
}

// networkViews 先列出选择器中的链，再补充其余已注册的链。
func networkViews(registry *network.Registry) []networkView {
	views := make([]networkView, 0, len(network.SelectableChains))
	for _, id := range network.SelectableChains {
		views = append(views, networkViewOf(registry, id))
	}
	for _, desc := range registry.Descriptors() {
		if slices.Contains(network.SelectableChains, desc.ChainID) {
			continue
		}
		views = append(views, networkViewOf(registry, desc.ChainID))
	}
	return views
}

func networkViewOf(registry *network.Registry, id uint64) networkView {
	view := networkView{ChainID: id, Label: network.Label(id)}
	if desc, ok := registry.Lookup(id); ok {
		view.Registered = true
		view.Descriptor = &desc
	}
	return view
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := xerrors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed", slog.Any("error", err), slog.String("code", string(xerrors.CodeOf(err))))
	}
	writeJSON(w, status, errorResponse{Error: errorBodyOf(err)})
}

func errorBodyOf(err error) errorBody {
	if e, ok := xerrors.From(err); ok {
		return errorBody{Code: string(e.Code()), Message: e.Message()}
	}
	return errorBody{Code: string(xerrors.CodeUnknown), Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
