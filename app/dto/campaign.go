package dto

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/ingest"
)

const (
	ModeStream    = "stream"
	ModeScheduled = "scheduled"

	DefaultInterval = 1000 * time.Millisecond
)

var (
	ErrMissingFields          = errors.New("Missing required fields or invalid file")
	ErrIntervalTooLow         = errors.New("Interval must be at least 500ms")
	ErrInvalidMode            = errors.New("mode must be either stream or scheduled")
	ErrInvalidDelay           = errors.New("delay must be a non-negative number of milliseconds")
	ErrMissingRecipientFields = errors.New("Missing campaignId or email")
)

// SubmitCampaignRequest is a parsed campaign submission form.
type SubmitCampaignRequest struct {
	Subject      string
	Body         string
	CampaignName string
	Interval     time.Duration
	Mode         string
	Delay        time.Duration
	FileName     string
	File         []byte
}

// SubmitFromEchoContext reads and validates the multipart submission form.
// Field checks run before the uploaded file is read.
func SubmitFromEchoContext(ctx echo.Context, defaultMode string) (SubmitCampaignRequest, error) {
	req := SubmitCampaignRequest{
		Subject:      strings.TrimSpace(ctx.FormValue("subject")),
		Body:         ctx.FormValue("body"),
		CampaignName: strings.TrimSpace(ctx.FormValue("campaignName")),
		Interval:     ParseInterval(ctx.FormValue("interval")),
		Mode:         strings.ToLower(strings.TrimSpace(ctx.FormValue("mode"))),
	}

	file, err := ctx.FormFile("file")
	if err != nil || file == nil {
		return req, ErrMissingFields
	}
	if req.Subject == "" || strings.TrimSpace(req.Body) == "" || req.CampaignName == "" {
		return req, ErrMissingFields
	}
	if req.Interval < dispatch.MinInterval {
		return req, ErrIntervalTooLow
	}

	if req.Mode == "" {
		req.Mode = defaultMode
	}
	if req.Mode != ModeStream && req.Mode != ModeScheduled {
		return req, ErrInvalidMode
	}
	if raw := strings.TrimSpace(ctx.FormValue("delay")); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			return req, ErrInvalidDelay
		}
		req.Delay = time.Duration(ms) * time.Millisecond
	}

	if err := ingest.CheckUpload(file.Filename, file.Header.Get(echo.HeaderContentType), file.Size); err != nil {
		return req, err
	}

	req.FileName = file.Filename
	req.File, err = readUpload(file)
	if err != nil {
		return req, err
	}
	return req, nil
}

// ParseInterval reads the interval field in milliseconds. Missing,
// non-numeric and zero values fall back to DefaultInterval.
func ParseInterval(raw string) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms == 0 {
		return DefaultInterval
	}
	return time.Duration(ms) * time.Millisecond
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, ingest.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > ingest.MaxUploadSize {
		return nil, ingest.ErrPayloadTooLarge
	}
	return data, nil
}

// UpdateRecipientRequest is the body of a recipient status update.
type UpdateRecipientRequest struct {
	CampaignID string `json:"campaignId"`
	Email      string `json:"email"`
	IsSent     bool   `json:"isSent"`
}

// UpdateRecipientFromEchoContext binds and normalizes a status update.
func UpdateRecipientFromEchoContext(ctx echo.Context) (UpdateRecipientRequest, error) {
	var req UpdateRecipientRequest
	if err := ctx.Bind(&req); err != nil {
		return UpdateRecipientRequest{}, err
	}
	req.CampaignID = strings.TrimSpace(req.CampaignID)
	req.Email = strings.TrimSpace(req.Email)
	return req, nil
}

// Validate checks required fields.
func (r *UpdateRecipientRequest) Validate() error {
	if r.CampaignID == "" || r.Email == "" {
		return ErrMissingRecipientFields
	}
	return nil
}

// ListParams are the paging parameters of the campaign listing.
type ListParams struct {
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListFromEchoContext reads limit/offset query parameters, clamping them
// to sane bounds.
func ListFromEchoContext(ctx echo.Context) ListParams {
	p := ListParams{Limit: DefaultListLimit}
	if v, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && v > 0 {
		p.Limit = min(v, MaxListLimit)
	}
	if v, err := strconv.Atoi(ctx.QueryParam("offset")); err == nil && v > 0 {
		p.Offset = v
	}
	return p
}
