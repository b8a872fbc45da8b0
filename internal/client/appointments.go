package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/api"
)

func appointmentPath(id uuid.UUID, action string) string {
	p := "/appointments/" + id.String()
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) BookAppointment(ctx context.Context, req api.BookAppointmentRequest) (*api.AppointmentResponse, error) {
	var out api.AppointmentResponse
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAppointment(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	var out api.AppointmentResponse
	if err := c.do(ctx, http.MethodGet, appointmentPath(id, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAppointments returns one clinic's appointments for a calendar day.
func (c *Client) ListAppointments(ctx context.Context, clinicID uuid.UUID, day time.Time) ([]api.AppointmentResponse, error) {
	q := url.Values{}
	q.Set("clinic_id", clinicID.String())
	q.Set("date", day.Format("2006-01-02"))

	var out []api.AppointmentResponse
	if err := c.do(ctx, http.MethodGet, "/appointments", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]api.AppointmentResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var out []api.AppointmentResponse
	if err := c.do(ctx, http.MethodGet, "/patients/"+patientID.String()+"/appointments", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) transition(ctx context.Context, id uuid.UUID, action string, body any) (*api.AppointmentResponse, error) {
	var out api.AppointmentResponse
	if err := c.do(ctx, http.MethodPost, appointmentPath(id, action), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "confirm", nil)
}

func (c *Client) CheckIn(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "check-in", nil)
}

func (c *Client) StartAppointment(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "start", nil)
}

func (c *Client) CompleteAppointment(ctx context.Context, id uuid.UUID, req api.CompleteAppointmentRequest) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "complete", req)
}

func (c *Client) CancelAppointment(ctx context.Context, id uuid.UUID, req api.CancelAppointmentRequest) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "cancel", req)
}

func (c *Client) MarkNoShow(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "no-show", nil)
}

func (c *Client) UndoNoShow(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "undo-no-show", nil)
}

func (c *Client) RescheduleAppointment(ctx context.Context, id uuid.UUID, req api.RescheduleAppointmentRequest) (*api.AppointmentResponse, error) {
	return c.transition(ctx, id, "reschedule", req)
}

func (c *Client) BulkConfirm(ctx context.Context, ids []uuid.UUID) (*api.BulkConfirmResponse, error) {
	var out api.BulkConfirmResponse
	if err := c.do(ctx, http.MethodPost, "/appointments/bulk-confirm", nil, api.BulkConfirmRequest{IDs: ids}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CalendarFile downloads the .ics export of an appointment.
func (c *Client) CalendarFile(ctx context.Context, id uuid.UUID) (string, error) {
	return c.text(ctx, http.MethodGet, appointmentPath(id, "calendar.ics"))
}
