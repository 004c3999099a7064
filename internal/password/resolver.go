package password

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/inward-bound/internal/common"
)

const defaultAttemptTimeout = 10 * time.Second

// Decryptor probes and opens encrypted documents.
type Decryptor interface {
	IsEncrypted(data []byte) (bool, error)
	Decrypt(data []byte, pw string) ([]byte, error)
}

// Resolution is the outcome of the password cascade for one attachment.
type Resolution struct {
	// Data is the usable document: the decrypted bytes, or the original
	// bytes when the attachment was not encrypted.
	Data []byte
	// Source identifies the producer whose candidate opened the document.
	// It is empty when no decryption was needed.
	Source Source
	// Attempts counts the candidates tried, the successful one included.
	Attempts int
	// Encrypted records whether the attachment required decryption.
	Encrypted bool
}

// Resolver runs the password cascade: it gathers candidates from its
// producers in cascade order and tries each against the attachment until
// one succeeds or the candidates are exhausted.
type Resolver struct {
	decryptor      Decryptor
	producers      []Producer
	attemptTimeout time.Duration
}

// NewResolver creates a resolver that consults the given producers in
// order. The producer order is the cascade order.
func NewResolver(decryptor Decryptor, producers ...Producer) *Resolver {
	return &Resolver{
		decryptor:      decryptor,
		producers:      producers,
		attemptTimeout: defaultAttemptTimeout,
	}
}

// SetAttemptTimeout overrides the per-candidate decryption timeout.
func (r *Resolver) SetAttemptTimeout(d time.Duration) {
	if d > 0 {
		r.attemptTimeout = d
	}
}

// Gather collects candidates from every producer, deduplicated by value.
// The first occurrence of a value keeps its position, so a password known
// to an earlier source is tried at that source's precedence.
func (r *Resolver) Gather(pctx Context) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for _, producer := range r.producers {
		for _, c := range producer.Candidates(pctx) {
			if c.Value == "" || seen[c.Value] {
				continue
			}
			seen[c.Value] = true
			out = append(out, c)
		}
	}
	return out
}

// Resolve produces the usable bytes for the attachment in pctx. Unencrypted
// attachments pass through untouched without running the cascade. For
// encrypted ones, candidates are tried in order and the remainder is
// skipped as soon as one succeeds; when every candidate fails the error
// wraps common.ErrPasswordExhausted.
func (r *Resolver) Resolve(ctx context.Context, pctx Context) (*Resolution, error) {
	data := pctx.Attachment.RawBytes

	encrypted, err := r.decryptor.IsEncrypted(data)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", pctx.Attachment.Filename, err)
	}
	if !encrypted {
		return &Resolution{Data: data}, nil
	}

	candidates := r.Gather(pctx)
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plain, err := r.tryCandidate(ctx, data, candidate.Value)
		if err == nil {
			common.LogDebug("attachment decrypted", common.Fields{
				"attachment": pctx.Attachment.Filename,
				"source":     candidate.Source,
				"attempts":   i + 1,
			})
			return &Resolution{Data: plain, Source: candidate.Source, Attempts: i + 1, Encrypted: true}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %s after %d candidates",
		common.ErrPasswordExhausted, pctx.Attachment.Filename, len(candidates))
}

// Reload refreshes every producer that supports reloading.
func (r *Resolver) Reload() error {
	for _, producer := range r.producers {
		if reloader, ok := producer.(Reloader); ok {
			if err := reloader.Reload(); err != nil {
				return err
			}
		}
	}
	return nil
}

// tryCandidate attempts one decryption under the per-candidate timeout so a
// pathological document cannot stall the cascade.
func (r *Resolver) tryCandidate(ctx context.Context, data []byte, pw string) ([]byte, error) {
	tctx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		plain, err := r.decryptor.Decrypt(data, pw)
		ch <- result{plain, err}
	}()

	select {
	case <-tctx.Done():
		return nil, tctx.Err()
	case res := <-ch:
		return res.data, res.err
	}
}
