package password

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDecryptor accepts exactly one password and records every attempt.
type fakeDecryptor struct {
	mu        sync.Mutex
	accepts   string
	encrypted bool
	delay     time.Duration
	attempted []string
}

func (d *fakeDecryptor) IsEncrypted([]byte) (bool, error) {
	return d.encrypted, nil
}

func (d *fakeDecryptor) Decrypt(data []byte, pw string) ([]byte, error) {
	d.mu.Lock()
	d.attempted = append(d.attempted, pw)
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if pw == d.accepts {
		return append([]byte("plain:"), data...), nil
	}
	return nil, errors.New("wrong password")
}

func (d *fakeDecryptor) attempts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.attempted...)
}

// staticProducer yields a fixed candidate list.
type staticProducer struct {
	source Source
	values []string
}

func (p staticProducer) Candidates(Context) []Candidate {
	out := make([]Candidate, 0, len(p.values))
	for _, v := range p.values {
		out = append(out, Candidate{Value: v, Source: p.source})
	}
	return out
}

func TestResolver_CascadeStopsAtFirstSuccess(t *testing.T) {
	dec := &fakeDecryptor{accepts: "X123", encrypted: true}
	resolver := NewResolver(dec,
		staticProducer{source: SourceRuleHint, values: []string{"A"}},
		staticProducer{source: SourceEnvironment, values: []string{"B", "X123", "C"}},
	)

	pctx := Context{Attachment: model.Attachment{Filename: "advice.pdf", RawBytes: []byte("doc")}}
	res, err := resolver.Resolve(context.Background(), pctx)
	require.NoError(t, err)

	assert.Equal(t, []byte("plain:doc"), res.Data)
	assert.Equal(t, SourceEnvironment, res.Source)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Encrypted)

	// C must never be attempted once X123 succeeds.
	assert.Equal(t, []string{"A", "B", "X123"}, dec.attempts())
}

func TestResolver_UnencryptedSkipsCascade(t *testing.T) {
	dec := &fakeDecryptor{accepts: "never", encrypted: false}
	resolver := NewResolver(dec, staticProducer{source: SourceEnvironment, values: []string{"A"}})

	pctx := Context{Attachment: model.Attachment{Filename: "plain.pdf", RawBytes: []byte("doc")}}
	res, err := resolver.Resolve(context.Background(), pctx)
	require.NoError(t, err)

	assert.Equal(t, []byte("doc"), res.Data)
	assert.False(t, res.Encrypted)
	assert.Empty(t, res.Source)
	assert.Empty(t, dec.attempts(), "no decryption attempts expected")
}

func TestResolver_Exhaustion(t *testing.T) {
	dec := &fakeDecryptor{accepts: "nope", encrypted: true}
	resolver := NewResolver(dec,
		staticProducer{source: SourceRuleHint, values: []string{"A"}},
		staticProducer{source: SourceBodyHint, values: []string{"B"}},
	)

	pctx := Context{Attachment: model.Attachment{Filename: "locked.pdf", RawBytes: []byte("doc")}}
	_, err := resolver.Resolve(context.Background(), pctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPasswordExhausted)
	assert.Equal(t, []string{"A", "B"}, dec.attempts())
}

func TestResolver_NoCandidates(t *testing.T) {
	dec := &fakeDecryptor{encrypted: true}
	resolver := NewResolver(dec)

	pctx := Context{Attachment: model.Attachment{Filename: "locked.pdf", RawBytes: []byte("doc")}}
	_, err := resolver.Resolve(context.Background(), pctx)
	assert.ErrorIs(t, err, common.ErrPasswordExhausted)
}

func TestResolver_GatherDeduplicatesByValue(t *testing.T) {
	resolver := NewResolver(&fakeDecryptor{},
		staticProducer{source: SourceRuleHint, values: []string{"shared"}},
		staticProducer{source: SourceEnvironment, values: []string{"env-only", "shared"}},
		staticProducer{source: SourceBodyHint, values: []string{"", "env-only", "body-only"}},
	)

	got := resolver.Gather(Context{})
	require.Len(t, got, 3)
	assert.Equal(t, Candidate{Value: "shared", Source: SourceRuleHint}, got[0])
	assert.Equal(t, Candidate{Value: "env-only", Source: SourceEnvironment}, got[1])
	assert.Equal(t, Candidate{Value: "body-only", Source: SourceBodyHint}, got[2])
}

func TestResolver_PerCandidateTimeout(t *testing.T) {
	dec := &fakeDecryptor{accepts: "slow", encrypted: true, delay: 200 * time.Millisecond}
	resolver := NewResolver(dec, staticProducer{source: SourceEnvironment, values: []string{"slow"}})
	resolver.SetAttemptTimeout(20 * time.Millisecond)

	pctx := Context{Attachment: model.Attachment{Filename: "slow.pdf", RawBytes: []byte("doc")}}
	_, err := resolver.Resolve(context.Background(), pctx)

	assert.ErrorIs(t, err, common.ErrPasswordExhausted)
}

func TestResolver_CancellationAbortsCascade(t *testing.T) {
	dec := &fakeDecryptor{accepts: "last", encrypted: true, delay: 30 * time.Millisecond}
	resolver := NewResolver(dec, staticProducer{
		source: SourceEnvironment,
		values: []string{"a", "b", "c", "d", "last"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(40 * time.Millisecond)
		cancel()
	}()

	pctx := Context{Attachment: model.Attachment{Filename: "locked.pdf", RawBytes: []byte("doc")}}
	_, err := resolver.Resolve(ctx, pctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(dec.attempts()), 5, "cascade should stop once the context is canceled")
}

func TestRuleHintProducer(t *testing.T) {
	pctx := Context{Rule: rules.Rule{PasswordHint: "HINT42"}}
	got := RuleHintProducer{}.Candidates(pctx)
	require.Len(t, got, 1)
	assert.Equal(t, Candidate{Value: "HINT42", Source: SourceRuleHint}, got[0])

	assert.Empty(t, RuleHintProducer{}.Candidates(Context{}))
}

func TestEnvProducer(t *testing.T) {
	t.Setenv(EnvPassword, "primary")
	t.Setenv(EnvPasswords, " second , third ,")

	got := NewEnvProducer().Candidates(Context{})
	require.Len(t, got, 3)
	assert.Equal(t, "primary", got[0].Value)
	assert.Equal(t, "second", got[1].Value)
	assert.Equal(t, "third", got[2].Value)
	for _, c := range got {
		assert.Equal(t, SourceEnvironment, c.Source)
	}
}

func TestBodyHintProducer(t *testing.T) {
	pctx := Context{Message: model.Message{
		BodyText: "Dear customer,\nPassword: Abc-12.3\nAlso try pwd - backup#1 when prompted.",
	}}

	got := BodyHintProducer{}.Candidates(pctx)
	require.Len(t, got, 2)
	assert.Equal(t, "Abc-12.3", got[0].Value)
	assert.Equal(t, "backup#1", got[1].Value)
	for _, c := range got {
		assert.Equal(t, SourceBodyHint, c.Source)
	}
}
