package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
	"github.com/yndnr/spoolmesh-go/internal/core/domain"
	"github.com/yndnr/spoolmesh-go/pkg/keylock"
)

// SpoolRepository defines the storage interface for spool operations.
type SpoolRepository interface {
	// Get retrieves spool metadata by identifier.
	Get(ctx context.Context, id domain.ID) (*domain.Spool, error)

	// PutNew atomically creates an empty spool record. Fails with
	// ErrSpoolExists on identifier collision.
	PutNew(ctx context.Context, spool *domain.Spool) error

	// AppendEntry appends one entry and advances the sequence counter,
	// iff the stored counter equals expectedSeq. Returns the committed
	// sequence.
	AppendEntry(ctx context.Context, id domain.ID, expectedSeq uint64, payload []byte) (uint64, error)

	// ReadEntry returns the payload stored at seq.
	ReadEntry(ctx context.Context, id domain.ID, seq uint64) ([]byte, error)

	// Delete removes the spool record and all of its entries.
	Delete(ctx context.Context, id domain.ID) error

	// CountSpools returns the number of spools currently stored.
	CountSpools(ctx context.Context) (int, error)
}

// Defaults applied by NewSpoolService when no option overrides them.
const (
	// DefaultMaxPayloadSize bounds a single appended message.
	DefaultMaxPayloadSize = 2 << 20

	// DefaultLockWait bounds how long a request waits for its
	// per-spool lock before failing with ErrBusy.
	DefaultLockWait = 5 * time.Second

	// createRetries is how many fresh identifiers create tries before
	// giving up on collisions.
	createRetries = 3
)

// SpoolService handles spool lifecycle operations.
type SpoolService struct {
	repo       SpoolRepository
	locks      *keylock.Table
	maxPayload int
	lockWait   time.Duration
	logger     *slog.Logger
}

// Option configures a SpoolService.
type Option func(*SpoolService)

// WithMaxPayloadSize sets the largest accepted append payload in bytes.
func WithMaxPayloadSize(n int) Option {
	return func(s *SpoolService) {
		if n > 0 {
			s.maxPayload = n
		}
	}
}

// WithLockWait sets how long a request waits for a contended spool.
func WithLockWait(d time.Duration) Option {
	return func(s *SpoolService) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SpoolService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpoolService creates a new SpoolService.
func NewSpoolService(repo SpoolRepository, opts ...Option) *SpoolService {
	s := &SpoolService{
		repo:       repo,
		locks:      keylock.New(),
		maxPayload: DefaultMaxPayloadSize,
		lockWait:   DefaultLockWait,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Create Operation
// ============================================================================

// CreateSpoolRequest contains parameters for spool creation.
type CreateSpoolRequest struct {
	// OwnerKey is the Ed25519 public key being registered as owner.
	OwnerKey []byte

	// Signature proves possession of the owner private key. It covers
	// the create signing bytes (see spoolproto.SigningBytes).
	Signature []byte
}

// CreateSpoolResponse contains the result of spool creation.
type CreateSpoolResponse struct {
	Spool *domain.Spool
}

// Create registers a new spool owned by the requesting key.
//
// Identifier collisions are resolved by regenerating and retrying; with
// 96-bit random identifiers more than one retry means the store is
// returning garbage, so the loop is short.
func (s *SpoolService) Create(ctx context.Context, req *CreateSpoolRequest) (*CreateSpoolResponse, error) {
	if len(req.OwnerKey) != spoolproto.PublicKeySize {
		return nil, domain.ErrBadRequest.WithDetails("owner key must be a 32-byte ed25519 public key")
	}
	if err := verifyCommand(&spoolproto.Request{
		Command:   spoolproto.CmdCreateSpool,
		PublicKey: req.OwnerKey,
		Signature: req.Signature,
	}, req.OwnerKey); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		spool, err := domain.NewSpool(req.OwnerKey)
		if err != nil {
			return nil, domain.ErrInternalServer.WithCause(err)
		}
		err = s.repo.PutNew(ctx, spool)
		if err == nil {
			s.logger.Info("spool created", "spool_id", spool.ID.String())
			return &CreateSpoolResponse{Spool: spool}, nil
		}
		if !errors.Is(err, domain.ErrSpoolExists) {
			return nil, err
		}
		s.logger.Warn("spool id collision, retrying", "spool_id", spool.ID.String())
	}
	return nil, domain.ErrInternalServer.WithDetails(
		fmt.Sprintf("could not allocate a spool id after %d attempts", createRetries))
}

// ============================================================================
// Append Operation
// ============================================================================

// AppendMessageRequest contains parameters for appending a message.
type AppendMessageRequest struct {
	SpoolID domain.ID

	// Sequence is the sequence the caller expects to be assigned. The
	// signature binds it, so a replayed append fails the sequence check
	// instead of silently duplicating a message.
	Sequence uint64

	// Payload is the message body. Opaque bytes.
	Payload []byte

	// Signature covers the append signing bytes under the owner key.
	Signature []byte
}

// AppendMessageResponse contains the result of an append.
type AppendMessageResponse struct {
	// Sequence is the committed position of the message.
	Sequence uint64
}

// Append stores one message at the spool's next sequence. Only the
// spool owner may append. Runs under the spool's exclusive lock so
// concurrent appends serialize and sequences stay gapless.
func (s *SpoolService) Append(ctx context.Context, req *AppendMessageRequest) (*AppendMessageResponse, error) {
	release, err := s.lock(ctx, req.SpoolID)
	if err != nil {
		return nil, err
	}
	defer release()

	spool, err := s.repo.Get(ctx, req.SpoolID)
	if err != nil {
		return nil, err
	}
	if err := verifyCommand(&spoolproto.Request{
		Command:   spoolproto.CmdAppendMessage,
		SpoolID:   req.SpoolID.Bytes(),
		Sequence:  req.Sequence,
		Payload:   req.Payload,
		Signature: req.Signature,
	}, spool.OwnerKey); err != nil {
		return nil, err
	}
	// Size is checked only after the caller proved ownership of an
	// existing spool, so an oversized request never masks a missing
	// spool or a bad signature.
	if len(req.Payload) > s.maxPayload {
		return nil, domain.ErrPayloadTooLarge.WithDetails(
			fmt.Sprintf("payload is %d bytes (max %d)", len(req.Payload), s.maxPayload))
	}
	if spool.NextSequence > domain.MaxSequence {
		return nil, domain.ErrSequenceExhausted
	}
	if req.Sequence != spool.NextSequence {
		return nil, domain.ErrSequenceConflict.WithDetails(
			fmt.Sprintf("spool is at %d, request signed for %d", spool.NextSequence, req.Sequence))
	}

	seq, err := s.repo.AppendEntry(ctx, req.SpoolID, req.Sequence, req.Payload)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("message appended",
		"spool_id", req.SpoolID.String(),
		"sequence", seq,
		"size", len(req.Payload))
	return &AppendMessageResponse{Sequence: seq}, nil
}

// ============================================================================
// Read Operation
// ============================================================================

// ReadMessageRequest contains parameters for reading a message.
type ReadMessageRequest struct {
	SpoolID  domain.ID
	Sequence uint64
}

// ReadMessageResponse contains the result of a read.
type ReadMessageResponse struct {
	Payload []byte
}

// Read returns the message stored at the given sequence. Reads carry no
// ownership check: any holder of the identifier may read, mirroring
// mailbox semantics in the surrounding network. Runs under the spool's
// shared lock so it never observes a half-applied purge.
func (s *SpoolService) Read(ctx context.Context, req *ReadMessageRequest) (*ReadMessageResponse, error) {
	release, err := s.rlock(ctx, req.SpoolID)
	if err != nil {
		return nil, err
	}
	defer release()

	payload, err := s.repo.ReadEntry(ctx, req.SpoolID, req.Sequence)
	if err != nil {
		return nil, err
	}
	return &ReadMessageResponse{Payload: payload}, nil
}

// ============================================================================
// Purge Operation
// ============================================================================

// PurgeSpoolRequest contains parameters for destroying a spool.
type PurgeSpoolRequest struct {
	SpoolID domain.ID

	// Signature covers the purge signing bytes under the owner key.
	Signature []byte
}

// Purge destroys a spool and every stored message. Only the owner may
// purge. After Purge returns, any request targeting the identifier
// observes not-found.
func (s *SpoolService) Purge(ctx context.Context, req *PurgeSpoolRequest) error {
	release, err := s.lock(ctx, req.SpoolID)
	if err != nil {
		return err
	}
	defer release()

	spool, err := s.repo.Get(ctx, req.SpoolID)
	if err != nil {
		return err
	}
	if err := verifyCommand(&spoolproto.Request{
		Command:   spoolproto.CmdPurgeSpool,
		SpoolID:   req.SpoolID.Bytes(),
		Signature: req.Signature,
	}, spool.OwnerKey); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, req.SpoolID); err != nil {
		return err
	}
	s.logger.Info("spool purged", "spool_id", req.SpoolID.String())
	return nil
}

// Count returns the number of spools currently stored.
func (s *SpoolService) Count(ctx context.Context) (int, error) {
	return s.repo.CountSpools(ctx)
}

// ============================================================================
// Per-spool locking
// ============================================================================

func (s *SpoolService) lock(ctx context.Context, id domain.ID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	release, err := s.locks.Lock(lockCtx, id.String())
	return release, s.mapLockError(err, id)
}

func (s *SpoolService) rlock(ctx context.Context, id domain.ID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	release, err := s.locks.RLock(lockCtx, id.String())
	return release, s.mapLockError(err, id)
}

func (s *SpoolService) mapLockError(err error, id domain.ID) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, keylock.ErrAcquireTimeout) {
		s.logger.Warn("spool lock wait timed out", "spool_id", id.String())
		return domain.ErrBusy.WithDetails("spool is locked by another request")
	}
	return domain.ErrInternalServer.WithCause(err)
}

// verifyCommand checks a command signature against the given owner key.
func verifyCommand(req *spoolproto.Request, owner []byte) error {
	if !req.VerifySignature(ed25519.PublicKey(owner)) {
		return domain.ErrUnauthorized.WithDetails(
			fmt.Sprintf("signature check failed for %s", req.Command))
	}
	return nil
}
