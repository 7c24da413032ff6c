package httpx

import (
	"net/http"
	"time"

	"WeeklyIngest/internal/ingest"
	"WeeklyIngest/internal/timing"
)

type FailureDTO struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type RunDTO struct {
	Started        time.Time    `json:"started"`
	Finished       time.Time    `json:"finished"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	Elapsed        string       `json:"elapsed"` // HH:MM:SS
	Fetched        int          `json:"fetched"`
	Written        int          `json:"written"`
	Failed         int          `json:"failed"`
	Aborted        bool         `json:"aborted"`
	Error          string       `json:"error,omitempty"`
	Failures       []FailureDTO `json:"failures,omitempty"`
}

type RunsResponse struct {
	Items []RunDTO `json:"items"`
	Meta  PageMeta `json:"meta"`
}

type ScheduleResponse struct {
	Job  string    `json:"job"`
	Next time.Time `json:"next"`
	In   string    `json:"in"` // HH:MM:SS until next
}

func toRunDTO(r ingest.RunResult, loc *time.Location) RunDTO {
	dto := RunDTO{
		Started:        r.Started.In(loc),
		Finished:       r.Finished.In(loc),
		ElapsedSeconds: r.Elapsed.Seconds(),
		Elapsed:        timing.FormatClock(r.Elapsed),
		Fetched:        r.Report.Fetched,
		Written:        r.Report.Written,
		Failed:         len(r.Report.Failures),
		Aborted:        r.Report.Aborted,
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
	}
	for _, f := range r.Report.Failures {
		dto.Failures = append(dto.Failures, FailureDTO{Row: f.Index, Error: f.Err.Error()})
	}
	return dto
}

// Last run godoc
// @Summary      Last ingest run
// @Description  Outcome of the most recent run since the process started
// @Tags         runs
// @Produce      json
// @Success      200  {object}  RunDTO
// @Failure      404  {object}  HTTPError
// @Router       /runs/last [get]
func lastRunHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, ok := d.Runs.Last()
		if !ok {
			writeError(w, http.StatusNotFound, "no run recorded yet")
			return
		}
		writeJSON(w, http.StatusOK, toRunDTO(last, d.Location))
	}
}

// Runs godoc
// @Summary      List ingest runs
// @Description  Recent runs kept in memory, newest first
// @Tags         runs
// @Produce      json
// @Param        page   query  int  false  "page (>=1)"      default(1)
// @Param        limit  query  int  false  "items per page"  default(10)  minimum(1)  maximum(50)
// @Success      200    {object}  RunsResponse
// @Router       /runs [get]
func runsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := d.Runs.All()
		page := getPage(r)
		limit := getLimit(r, 10, 50)

		newest := make([]RunDTO, 0, len(all))
		for i := len(all) - 1; i >= 0; i-- {
			newest = append(newest, toRunDTO(all[i], d.Location))
		}
		from, to := paginate(len(newest), page, limit)

		writeJSON(w, http.StatusOK, RunsResponse{
			Items: newest[from:to],
			Meta:  PageMeta{Page: page, Limit: limit, Total: len(newest)},
		})
	}
}

// Schedule godoc
// @Summary      Next fire time
// @Tags         schedule
// @Produce      json
// @Success      200  {object}  ScheduleResponse
// @Failure      404  {object}  HTTPError
// @Router       /schedule [get]
func scheduleHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := d.Schedule.Next(d.Job)
		if next.IsZero() {
			writeError(w, http.StatusNotFound, "job not scheduled")
			return
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{
			Job:  d.Job,
			Next: next.In(d.Location),
			In:   timing.FormatClock(time.Until(next)),
		})
	}
}
