// Package command is the asynchronous dispatch engine: producers submit
// identity commands from any goroutine, a single worker executes them in
// arrival order, and each command's callback fires exactly once.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"aegis-id/go-agent/internal/identity"
	"aegis-id/go-agent/internal/wallet"
	"aegis-id/go-agent/pkg/models"
)

var (
	// ErrQueueFull is returned on submission when the bounded queue is at
	// capacity. Producers never block; retrying is their decision.
	ErrQueueFull = errors.New("command queue is full")

	ErrExecutorClosed = errors.New("command executor is closed")
)

const defaultQueueCapacity = 256

type task struct {
	op     string
	wallet wallet.Handle
	run    func(ctx context.Context)
	fail   func(err error)
}

// Executor owns the command queue and its worker. Construct one per process
// and hand it to producers by reference.
type Executor struct {
	service *identity.Service
	log     *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	closed   bool
	stopping atomic.Bool
	queue    chan task
	wg       sync.WaitGroup
}

type Options struct {
	QueueCapacity int
	Logger        *slog.Logger
	Metrics       *Metrics
}

func NewExecutor(service *identity.Service, opts Options) *Executor {
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = newNopMetrics()
	}
	e := &Executor{
		service: service,
		log:     log,
		metrics: m,
		queue:   make(chan task, capacity),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

// Close stops the worker. The in-flight command finishes; commands still
// queued fail through their callbacks with ErrExecutorClosed. Safe to call
// more than once.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopping.Store(true)
	close(e.queue)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Executor) loop() {
	defer e.wg.Done()
	for t := range e.queue {
		e.metrics.queueDepth(len(e.queue))
		if e.stopping.Load() {
			t.fail(ErrExecutorClosed)
			continue
		}
		e.log.Info("command received", "op", t.op, "wallet", int(t.wallet))
		t.run(context.Background())
	}
}

func (e *Executor) enqueue(t task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.queue <- t:
		e.metrics.queueDepth(len(e.queue))
		return nil
	default:
		e.metrics.queueReject()
		return ErrQueueFull
	}
}

// submit builds the exactly-once task for one typed command. Exactly one of
// run (worker executes the operation) or fail (executor shut down first) is
// ever invoked, and each invokes cb exactly once. A panicking operation is
// reported as a failure and the worker keeps going.
func submit[T any](e *Executor, op string, h wallet.Handle, cb func(T, error), fn func(ctx context.Context) (T, error)) error {
	if cb == nil {
		return fmt.Errorf("%s: nil callback", op)
	}
	return e.enqueue(task{
		op:     op,
		wallet: h,
		run: func(ctx context.Context) {
			timer := e.metrics.startTimer(op)
			var out T
			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%s: panic: %v", op, r)
					}
				}()
				out, err = fn(ctx)
			}()
			timer.done()
			if err != nil {
				e.log.Error("command failed", "op", op, "wallet", int(h), "error", err)
			}
			e.metrics.observe(op, err)
			cb(out, err)
		},
		fail: func(err error) {
			var zero T
			e.metrics.observe(op, err)
			cb(zero, err)
		},
	})
}

// CreateAndStoreMyDid submits a create-and-store command. didJSON is the
// request payload {"did","seed","crypto_type"}, all fields optional.
func (e *Executor) CreateAndStoreMyDid(h wallet.Handle, didJSON string, cb func(models.CreatedIdentity, error)) error {
	return submit(e, "create_and_store_my_did", h, cb, func(ctx context.Context) (models.CreatedIdentity, error) {
		return e.service.CreateAndStoreMyDid(h, didJSON)
	})
}

// ReplaceKeys submits a key-rotation command for an owned did.
func (e *Executor) ReplaceKeys(h wallet.Handle, identityJSON, did string, cb func(models.ReplacedKeys, error)) error {
	return submit(e, "replace_keys", h, cb, func(ctx context.Context) (models.ReplacedKeys, error) {
		return e.service.ReplaceKeys(h, identityJSON, did)
	})
}

// StoreTheirDid submits a counterpart-caching command.
func (e *Executor) StoreTheirDid(h wallet.Handle, identityJSON string, cb func(struct{}, error)) error {
	return submit(e, "store_their_did", h, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.service.StoreTheirDid(h, identityJSON)
	})
}

// Sign submits a signing command; the callback receives the base58
// signature.
func (e *Executor) Sign(h wallet.Handle, did, msg string, cb func(string, error)) error {
	return submit(e, "sign", h, cb, func(ctx context.Context) (string, error) {
		return e.service.Sign(h, did, msg)
	})
}

// VerifySignature submits a verification command. A well-formed but
// non-matching signature completes with (false, nil).
func (e *Executor) VerifySignature(h wallet.Handle, did, msg, signature string, cb func(bool, error)) error {
	return submit(e, "verify_signature", h, cb, func(ctx context.Context) (bool, error) {
		return e.service.VerifySignature(ctx, h, did, msg, signature)
	})
}

// Encrypt submits an encryption command from the owned identity myDid to
// the counterpart did; the callback receives the serialized envelope.
func (e *Executor) Encrypt(h wallet.Handle, myDid, did, msg string, cb func(string, error)) error {
	return submit(e, "encrypt", h, cb, func(ctx context.Context) (string, error) {
		return e.service.Encrypt(ctx, h, myDid, did, msg)
	})
}

// Decrypt submits a decryption command for an envelope addressed to the
// owned identity myDid.
func (e *Executor) Decrypt(h wallet.Handle, myDid, encryptedMsg string, cb func(string, error)) error {
	return submit(e, "decrypt", h, cb, func(ctx context.Context) (string, error) {
		return e.service.Decrypt(ctx, h, myDid, encryptedMsg)
	})
}
