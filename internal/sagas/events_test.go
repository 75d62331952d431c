package sagas_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/JaimeStill/docflow/internal/sagas"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Envelope(t *testing.T) {
	data := sagas.StepEvent{
		SagaID:   uuid.New(),
		StepID:   uuid.New(),
		Service:  sagas.ServiceMetadata,
		Document: json.RawMessage(`{"file_name":"a.pdf"}`),
	}

	raw, err := sagas.Encode(sagas.Source, sagas.TypeSaveMetadata, data)
	require.NoError(t, err)

	var e cloudevents.Event
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.Equal(t, "1.0", e.SpecVersion())
	assert.Equal(t, sagas.TypeSaveMetadata, e.Type())
	assert.Equal(t, sagas.Source, e.Source())
	assert.NotEmpty(t, e.ID())
	assert.Equal(t, data.SagaID.String(), e.Extensions()[sagas.SagaExtension])

	got, err := sagas.Decode(raw, sagas.TypeSaveMetadata)
	require.NoError(t, err)
	assert.Equal(t, data.SagaID, got.SagaID)
	assert.Equal(t, data.StepID, got.StepID)
	assert.JSONEq(t, string(data.Document), string(got.Document))
}

func TestDecode_Invalid(t *testing.T) {
	missingIDs, err := sagas.Encode("test", sagas.TypeStepCompleted, sagas.StepEvent{Service: "x"})
	require.NoError(t, err)

	other, err := sagas.Encode("test", sagas.TypeStepFailed, sagas.StepEvent{SagaID: uuid.New(), StepID: uuid.New()})
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("{")},
		{"missing ids", missingIDs},
		{"wrong type", other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sagas.Decode(tt.raw, sagas.TypeStepCompleted)
			assert.ErrorIs(t, err, sagas.ErrInvalidEvent)
		})
	}
}

func TestReplies(t *testing.T) {
	in := sagas.StepEvent{SagaID: uuid.New(), StepID: uuid.New(), Service: sagas.ServiceMetadata}

	done, err := sagas.Completed("metadata", in, map[string]int{"revision": 2})
	require.NoError(t, err)
	ev, err := sagas.Decode(done, sagas.TypeStepCompleted)
	require.NoError(t, err)
	assert.Equal(t, in.StepID, ev.StepID)
	assert.JSONEq(t, `{"revision": 2}`, string(ev.Result))

	failed, err := sagas.Failed("metadata", in, errors.New("duplicate"))
	require.NoError(t, err)
	ev, err = sagas.Decode(failed, sagas.TypeStepFailed)
	require.NoError(t, err)
	assert.Equal(t, "duplicate", ev.Error)
}
