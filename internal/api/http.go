package api

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// GraphQLPath - путь HTTP-эндпоинта API.
const GraphQLPath = "/graphql"

const maxRequestBody = 1 << 20

// HTTPHandler обслуживает POST /graphql.
type HTTPHandler struct {
	dispatcher *Dispatcher
	logger     *log.Entry
}

// NewHTTPHandler создаёт HTTP-обработчик поверх диспетчера.
func NewHTTPHandler(dispatcher *Dispatcher, logger *log.Entry) *HTTPHandler {
	if logger == nil {
		logger = log.WithField("component", "crm-http")
	}
	return &HTTPHandler{dispatcher: dispatcher, logger: logger}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, &Error{Kind: KindBadRequest, Message: "method not allowed"}, http.StatusMethodNotAllowed)
		return
	}

	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Operation == "" {
		h.writeError(w, badRequest("operation is required"), http.StatusBadRequest)
		return
	}

	data, err := h.dispatcher.Execute(r.Context(), TransportHTTP, req)
	if err != nil {
		apiErr := toError(err)
		h.writeError(w, apiErr, apiErr.Kind.HTTPStatus())
		return
	}
	h.writeJSON(w, http.StatusOK, Response{Data: data})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, apiErr *Error, status int) {
	h.writeJSON(w, status, Response{Errors: []ErrorBody{{Message: apiErr.Message, Kind: apiErr.Kind}}})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Warn("failed to write response")
	}
}
