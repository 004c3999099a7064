package password

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMappings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passwords.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMappingProducer_Candidates(t *testing.T) {
	path := writeMappings(t, `{
		"senders":  {"Alerts@YesBank.example": ["sender-pw"]},
		"domains":  {"yesbank.example": ["domain-pw-b", "domain-pw-a"]},
		"subjects": {"remittance": ["subject-pw"], "advice": ["advice-pw"]}
	}`)

	producer, err := NewMappingProducer(path)
	require.NoError(t, err)

	pctx := Context{Message: model.Message{
		Sender:  "YES Bank <alerts@yesbank.example>",
		Subject: "Remittance Advice for your account",
	}}

	got := producer.Candidates(pctx)
	var values []string
	for _, c := range got {
		assert.Equal(t, SourceMappingFile, c.Source)
		values = append(values, c.Value)
	}

	// Senders first, then domains, then subject keys in sorted order.
	assert.Equal(t, []string{"sender-pw", "domain-pw-b", "domain-pw-a", "advice-pw", "subject-pw"}, values)
}

func TestMappingProducer_NoMatches(t *testing.T) {
	path := writeMappings(t, `{"senders": {"other@bank.example": ["pw"]}}`)

	producer, err := NewMappingProducer(path)
	require.NoError(t, err)

	got := producer.Candidates(Context{Message: model.Message{Sender: "alerts@yesbank.example"}})
	assert.Empty(t, got)
}

func TestMappingProducer_Reload(t *testing.T) {
	path := writeMappings(t, `{"domains": {"yesbank.example": ["old-pw"]}}`)

	producer, err := NewMappingProducer(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"domains": {"yesbank.example": ["new-pw"]}}`), 0o600))
	require.NoError(t, producer.Reload())

	got := producer.Candidates(Context{Message: model.Message{Sender: "a@yesbank.example"}})
	require.Len(t, got, 1)
	assert.Equal(t, "new-pw", got[0].Value)
}

func TestMappingProducer_InvalidFile(t *testing.T) {
	path := writeMappings(t, `{not json`)

	_, err := NewMappingProducer(path)
	assert.Error(t, err)
}

func TestMappingProducer_MissingFile(t *testing.T) {
	_, err := NewMappingProducer(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
