package pluginserver

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
	"github.com/yndnr/spoolmesh-go/internal/core/domain"
	"github.com/yndnr/spoolmesh-go/internal/core/service"
	"github.com/yndnr/spoolmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/logger"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/metric"
)

// maxEnvelopeOverhead bounds the envelope bytes around the largest
// accepted payload when limiting request body reads.
const maxEnvelopeOverhead = 4 << 10

// Handler decodes plugin envelopes and dispatches spool commands.
type Handler struct {
	svc        *service.SpoolService
	metrics    *metric.Registry
	maxPayload int
}

// NewHandler creates the command handler.
func NewHandler(svc *service.SpoolService, metrics *metric.Registry, maxPayload int) *Handler {
	return &Handler{
		svc:        svc,
		metrics:    metrics,
		maxPayload: maxPayload,
	}
}

// ServeRequest handles POST /request: one plugin envelope in, one
// envelope out. Command failures travel inside the response payload;
// HTTP errors are reserved for malformed envelopes.
func (h *Handler) ServeRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(h.maxPayload)+maxEnvelopeOverhead))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var envelope spoolproto.PluginRequest
	if err := spoolproto.Unmarshal(body, &envelope); err != nil {
		logger.L(r.Context()).Warn("malformed plugin envelope", "error", err)
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	resp := h.dispatch(r.Context(), envelope.Payload)

	respPayload, err := spoolproto.Marshal(resp)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	out, err := spoolproto.Marshal(&spoolproto.PluginResponse{Payload: respPayload})
	if err != nil {
		http.Error(w, "encode envelope", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	w.Write(out)
}

// ServeParameters handles /parameters: the advertised service
// parameter map, CBOR-encoded.
func (h *Handler) ServeParameters(w http.ResponseWriter, r *http.Request) {
	params := spoolproto.Parameters{
		"maxMessageSize": strconv.Itoa(h.maxPayload),
		"version":        buildinfo.Version,
	}
	out, err := spoolproto.Marshal(params)
	if err != nil {
		http.Error(w, "encode parameters", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.Write(out)
}

// dispatch decodes and executes one spool command. Every outcome maps
// to a Response; the status carries the stable error code on failure.
func (h *Handler) dispatch(ctx context.Context, payload []byte) *spoolproto.Response {
	start := time.Now()

	var req spoolproto.Request
	if err := spoolproto.Unmarshal(payload, &req); err != nil {
		logger.L(ctx).Warn("malformed spool command", "error", err)
		h.metrics.ObserveRequest("malformed", domain.GetErrorCode(domain.ErrBadRequest), time.Since(start))
		return &spoolproto.Response{Status: domain.GetErrorCode(domain.ErrBadRequest)}
	}
	if err := req.ValidateShape(); err != nil {
		logger.L(ctx).Warn("rejected spool command", "command", req.Command.String(), "error", err)
		h.metrics.ObserveRequest(req.Command.String(), domain.GetErrorCode(domain.ErrBadRequest), time.Since(start))
		return &spoolproto.Response{Status: domain.GetErrorCode(domain.ErrBadRequest)}
	}

	resp := h.execute(ctx, &req)
	h.metrics.ObserveRequest(req.Command.String(), resp.Status, time.Since(start))
	if resp.Status != spoolproto.StatusOK {
		h.metrics.Errors.WithLabelValues(resp.Status).Inc()
	}
	return resp
}

func (h *Handler) execute(ctx context.Context, req *spoolproto.Request) *spoolproto.Response {
	switch req.Command {
	case spoolproto.CmdCreateSpool:
		created, err := h.svc.Create(ctx, &service.CreateSpoolRequest{
			OwnerKey:  req.PublicKey,
			Signature: req.Signature,
		})
		if err != nil {
			return errorResponse(ctx, req, err)
		}
		h.metrics.SpoolsCreated.Inc()
		return &spoolproto.Response{
			SpoolID: created.Spool.ID.Bytes(),
			Status:  spoolproto.StatusOK,
		}

	case spoolproto.CmdAppendMessage:
		id, err := domain.IDFromBytes(req.SpoolID)
		if err != nil {
			return errorResponse(ctx, req, domain.ErrBadRequest.WithCause(err))
		}
		appended, err := h.svc.Append(ctx, &service.AppendMessageRequest{
			SpoolID:   id,
			Sequence:  req.Sequence,
			Payload:   req.Payload,
			Signature: req.Signature,
		})
		if err != nil {
			return errorResponse(ctx, req, err)
		}
		h.metrics.Appends.Inc()
		return &spoolproto.Response{
			SpoolID:  req.SpoolID,
			Sequence: appended.Sequence,
			Status:   spoolproto.StatusOK,
		}

	case spoolproto.CmdRetrieveMessage:
		id, err := domain.IDFromBytes(req.SpoolID)
		if err != nil {
			return errorResponse(ctx, req, domain.ErrBadRequest.WithCause(err))
		}
		read, err := h.svc.Read(ctx, &service.ReadMessageRequest{
			SpoolID:  id,
			Sequence: req.Sequence,
		})
		if err != nil {
			return errorResponse(ctx, req, err)
		}
		h.metrics.Reads.Inc()
		return &spoolproto.Response{
			SpoolID:  req.SpoolID,
			Sequence: req.Sequence,
			Payload:  read.Payload,
			Status:   spoolproto.StatusOK,
		}

	case spoolproto.CmdPurgeSpool:
		id, err := domain.IDFromBytes(req.SpoolID)
		if err != nil {
			return errorResponse(ctx, req, domain.ErrBadRequest.WithCause(err))
		}
		if err := h.svc.Purge(ctx, &service.PurgeSpoolRequest{
			SpoolID:   id,
			Signature: req.Signature,
		}); err != nil {
			return errorResponse(ctx, req, err)
		}
		h.metrics.SpoolsPurged.Inc()
		return &spoolproto.Response{
			SpoolID: req.SpoolID,
			Status:  spoolproto.StatusOK,
		}

	default:
		return &spoolproto.Response{Status: domain.GetErrorCode(domain.ErrBadRequest)}
	}
}

func errorResponse(ctx context.Context, req *spoolproto.Request, err error) *spoolproto.Response {
	code := domain.GetErrorCode(err)
	if code == "" {
		logger.L(ctx).Error("command failed", "command", req.Command.String(), "error", err)
		code = domain.GetErrorCode(domain.ErrInternalServer)
	} else {
		logger.L(ctx).Debug("command rejected", "command", req.Command.String(), "code", code)
	}
	return &spoolproto.Response{SpoolID: req.SpoolID, Status: code}
}
