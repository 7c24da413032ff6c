package fetch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"WeeklyIngest/internal/auth"
	"WeeklyIngest/internal/record"
)

// ErrUnauthenticated is returned when the session holds no token.
var ErrUnauthenticated = errors.New("no access token; login failed at startup")

// Fetcher produces the dataset for one ingest run.
type Fetcher interface {
	Fetch(ctx context.Context) ([]record.Row, error)
}

// Empty is the degenerate fetcher used when no dataset path is configured.
type Empty struct{}

func (Empty) Fetch(context.Context) ([]record.Row, error) { return []record.Row{}, nil }

// HTTP fetches a JSON or CSV dataset with the session's bearer token.
type HTTP struct {
	url        string
	session    auth.Session
	httpClient *http.Client
	log        zerolog.Logger
}

func NewHTTP(endpoint, dataPath string, session auth.Session, timeout time.Duration, log zerolog.Logger) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if !strings.HasPrefix(dataPath, "/") {
		dataPath = "/" + dataPath
	}
	return &HTTP{
		url:        strings.TrimRight(endpoint, "/") + dataPath,
		session:    session,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "fetch").Logger(),
	}
}

// New picks Empty when dataPath is unset.
func New(endpoint, dataPath string, session auth.Session, log zerolog.Logger) Fetcher {
	if dataPath == "" {
		return Empty{}
	}
	return NewHTTP(endpoint, dataPath, session, 0, log)
}

func (h *HTTP) Fetch(ctx context.Context) ([]record.Row, error) {
	if !h.session.Valid() {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build dataset request")
	}
	req.Header.Set("Authorization", h.session.Authorization)
	req.Header.Set("Accept", "application/json, text/csv")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "dataset request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read dataset")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("dataset http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	var rows []record.Row
	if mt == "text/csv" {
		rows, err = decodeCSV(body)
	} else {
		rows, err = decodeJSON(body)
	}
	if err != nil {
		return nil, err
	}

	h.log.Info().Int("rows", len(rows)).Str("url", h.url).Msg("Dataset fetched")
	return rows, nil
}

// decodeJSON accepts a top-level array of objects or {"data": [...]}.
func decodeJSON(body []byte) ([]record.Row, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []record.Row{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var rows []record.Row
		if err := dec.Decode(&rows); err != nil {
			return nil, errors.Wrap(err, "decode dataset array")
		}
		return rows, nil
	}

	var wrapped struct {
		Data []record.Row `json:"data"`
	}
	if err := dec.Decode(&wrapped); err != nil {
		return nil, errors.Wrap(err, "decode dataset object")
	}
	if wrapped.Data == nil {
		return nil, errors.New(`dataset object has no "data" array`)
	}
	return wrapped.Data, nil
}

// decodeCSV maps each record through the header row; short records leave fields unset.
func decodeCSV(body []byte) ([]record.Row, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []record.Row{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}

	rows := []record.Row{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv row %d", len(rows)+1)
		}
		row := make(record.Row, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[strings.TrimSpace(name)] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
