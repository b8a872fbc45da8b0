package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	skafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scopedMeta() Meta {
	return Meta{OrganizationID: uuid.New(), ClinicID: uuid.New()}
}

func TestNewRejectsMissingScope(t *testing.T) {
	_, err := New(AppointmentConfirmed{AppointmentID: uuid.New()})
	assert.ErrorIs(t, err, ErrMissingOrganization)

	_, err = New(AppointmentConfirmed{Meta: Meta{OrganizationID: uuid.New()}, AppointmentID: uuid.New()})
	assert.ErrorIs(t, err, ErrMissingClinic)

	_, err = New(AppointmentConfirmed{Meta: scopedMeta()})
	assert.ErrorIs(t, err, ErrMissingAggregate)
}

func TestNewStampsOccurredAt(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prev := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = prev }()

	evt, err := New(PatientDeleted{Meta: scopedMeta(), PatientID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, fixed, evt.OccurredAt)
}

func TestContractValidation(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		seal    func() error
		wantErr bool
	}{
		{"booked ok", func() error {
			_, err := Seal(AppointmentBooked{Meta: scopedMeta(), AppointmentID: uuid.New(), PatientID: uuid.New(), ProviderID: uuid.New(), Start: start, End: start.Add(time.Hour)})
			return err
		}, false},
		{"booked end before start", func() error {
			_, err := Seal(AppointmentBooked{Meta: scopedMeta(), AppointmentID: uuid.New(), PatientID: uuid.New(), ProviderID: uuid.New(), Start: start, End: start})
			return err
		}, true},
		{"completed without procedures", func() error {
			_, err := Seal(AppointmentCompleted{Meta: scopedMeta(), AppointmentID: uuid.New(), MaterialCost: decimal.Zero})
			return err
		}, true},
		{"no-show count zero", func() error {
			_, err := Seal(AppointmentNoShow{Meta: scopedMeta(), AppointmentID: uuid.New(), PatientID: uuid.New()})
			return err
		}, true},
		{"cancel without reason", func() error {
			_, err := Seal(AppointmentCancelled{Meta: scopedMeta(), AppointmentID: uuid.New()})
			return err
		}, true},
		{"tenant created without clinic", func() error {
			_, err := Seal(TenantCreated{Meta: Meta{OrganizationID: uuid.New()}, Name: "Smile Group"})
			return err
		}, false},
		{"clinic with bad timezone", func() error {
			_, err := Seal(ClinicCreated{Meta: scopedMeta(), Name: "Downtown", Timezone: "Mars/Olympus"})
			return err
		}, true},
		{"user created", func() error {
			_, err := Seal(UserCreated{Meta: Meta{OrganizationID: uuid.New()}, UserID: uuid.New(), Email: "a@b.c", Role: "hygienist"})
			return err
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seal()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSealEnvelope(t *testing.T) {
	meta := scopedMeta()
	apptID := uuid.New()
	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")

	env, err := Seal(AppointmentNoShow{
		Meta:               meta,
		AppointmentID:      apptID,
		PatientID:          uuid.New(),
		PatientNoShowCount: 2,
	}, WithEventID(id))
	require.NoError(t, err)

	assert.Equal(t, id, env.EventID)
	assert.Equal(t, "appointment.no_show", env.EventType)
	assert.Equal(t, "appointment.no_show.v1", env.VersionedType())
	assert.Equal(t, apptID, env.AggregateID)
	assert.Equal(t, meta.OrganizationID, env.OrganizationID)
	assert.Equal(t, meta.ClinicID, env.ClinicID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.EqualValues(t, 2, payload["patientNoShowCount"])
	assert.Equal(t, meta.OrganizationID.String(), payload["organizationId"])
}

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewOutboxStore(mock)
	env, err := Seal(PatientDeleted{Meta: scopedMeta(), PatientID: uuid.New()})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(env.EventID, env.AggregateID, env.OrganizationID, "patient.deleted.v1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Append(context.Background(), env))

	raw, _ := json.Marshal(env)
	rows := pgxmock.NewRows([]string{"id", "payload", "attempts", "created_at"}).
		AddRow(env.EventID, raw, 0, time.Now())
	mock.ExpectQuery("SELECT id, payload").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, env.AggregateID, entries[0].Envelope.AggregateID)

	mock.ExpectExec("UPDATE outbox").WithArgs(env.EventID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeWriter struct {
	msgs []skafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByAggregate(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw)
	env, err := Seal(PatientDeleted{Meta: scopedMeta(), PatientID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), env))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, env.AggregateID.String(), string(fw.msgs[0].Key))
	assert.Equal(t, "event-type", fw.msgs[0].Headers[0].Key)
}

type fakeRelayStore struct {
	entries   []OutboxEntry
	delivered []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRelayStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	return f.entries, nil
}

func (f *fakeRelayStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	f.delivered = append(f.delivered, id)
	return true, nil
}

func (f *fakeRelayStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	f.failed = append(f.failed, id)
	return nil
}

type flakyPublisher struct {
	failOn uuid.UUID
	sent   []uuid.UUID
}

func (p *flakyPublisher) Publish(ctx context.Context, env Envelope) error {
	if env.EventID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, env.EventID)
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func TestRelayStopsAtFirstFailure(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	store := &fakeRelayStore{entries: []OutboxEntry{
		{ID: a, Envelope: Envelope{EventID: a, EventType: "x"}},
		{ID: b, Envelope: Envelope{EventID: b, EventType: "x"}},
		{ID: c, Envelope: Envelope{EventID: c, EventType: "x"}},
	}}
	pub := &flakyPublisher{failOn: b}

	n, err := NewRelay(store, pub, nil, nil, 10).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{a}, store.delivered)
	assert.Equal(t, []uuid.UUID{b}, store.failed)
	assert.Equal(t, []uuid.UUID{a}, pub.sent)
}
