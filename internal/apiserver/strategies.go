package apiserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/strategies"
)

var errDuplicateName = errors.New("strategy name already exists")

const strategyColumns = `id, name, description, is_active, parameters, performance_metrics, created_at, updated_at`

func scanStrategy(row interface{ Scan(...any) error }) (*domain.Strategy, error) {
	var st domain.Strategy
	var metrics sql.NullString
	var created, updated string
	if err := row.Scan(&st.ID, &st.Name, &st.Description, &st.IsActive, &st.Parameters, &metrics, &created, &updated); err != nil {
		return nil, err
	}
	if metrics.Valid {
		m := metrics.String
		st.PerformanceMetrics = &m
	}
	st.CreatedAt = domain.TS(parseTime(created))
	st.UpdatedAt = domain.TS(parseTime(updated))
	return &st, nil
}

func (s *Server) listStrategies(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+strategyColumns+` FROM strategies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Strategy{}
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *Server) getStrategy(ctx context.Context, id int64) (*domain.Strategy, error) {
	st, err := scanStrategy(s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+strategyColumns+` FROM strategies WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

func (s *Server) insertStrategy(ctx context.Context, in domain.StrategyInput, active bool, metrics *string) (int64, error) {
	now := formatTime(time.Now())
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
INSERT INTO strategies(name, description, is_active, parameters, performance_metrics, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		in.Name, in.Description, active, in.Parameters, metrics, now, now).Scan(&id)
	if isUniqueViolation(err) {
		return 0, errDuplicateName
	}
	return id, err
}

// updateStrategy 返回受影响行数是否为 1
func (s *Server) updateStrategy(ctx context.Context, id int64, in domain.StrategyInput) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
UPDATE strategies SET name = ?, description = ?, parameters = ?, updated_at = ? WHERE id = ?`),
		in.Name, in.Description, in.Parameters, formatTime(time.Now()), id)
	if isUniqueViolation(err) {
		return false, errDuplicateName
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Server) setStrategyActive(ctx context.Context, id int64, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE strategies SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, formatTime(time.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Server) deleteStrategy(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM strategies WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// readStrategyInput JSON body 优先；body 为空时退回查询参数
func readStrategyInput(r *http.Request) (domain.StrategyInput, error) {
	var in domain.StrategyInput
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return in, err
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return in, errors.New("invalid json body")
		}
	} else {
		q := r.URL.Query()
		in = domain.StrategyInput{Name: q.Get("name"), Description: q.Get("description"), Parameters: q.Get("parameters")}
	}
	in.Name = strings.TrimSpace(in.Name)
	if strings.TrimSpace(in.Parameters) == "" {
		in.Parameters = domain.DefaultParameters
	}
	return in, nil
}

func (s *Server) validateStrategy(in domain.StrategyInput) error {
	if in.Name == "" {
		return &strategies.ValidationError{Field: "name", Problems: []string{"name is required"}}
	}
	return s.registry.ForName(in.Name).Validate(in.Parameters)
}

func strategyID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid strategy id %q", pathParam(r, "id"))
	}
	return id, nil
}

func (s *Server) handleStrategiesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	out, err := s.listStrategies(ctx)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) handleStrategiesCreate(w http.ResponseWriter, r *http.Request) {
	in, err := readStrategyInput(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if err := s.validateStrategy(in); err != nil {
		writeError(w, 422, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, err := s.insertStrategy(ctx, in, true, nil)
	if errors.Is(err, errDuplicateName) {
		writeError(w, 409, err.Error())
		return
	}
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	s.respondStrategy(ctx, w, 200, id)
}

func (s *Server) handleStrategyUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	in, err := readStrategyInput(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if err := s.validateStrategy(in); err != nil {
		writeError(w, 422, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, err := s.updateStrategy(ctx, id, in)
	switch {
	case errors.Is(err, errDuplicateName):
		writeError(w, 409, err.Error())
		return
	case err != nil:
		writeError(w, 500, err.Error())
		return
	case !ok:
		writeError(w, 404, "Strategy not found")
		return
	}
	s.respondStrategy(ctx, w, 200, id)
}

func (s *Server) handleStrategySetActive(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	active, err := readActive(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, err := s.setStrategyActive(ctx, id, active)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if !ok {
		writeError(w, 404, "Strategy not found")
		return
	}
	s.respondStrategy(ctx, w, 200, id)
}

// readActive is_active 可以在 JSON body 里，也可以在查询参数里
func readActive(r *http.Request) (bool, error) {
	var body struct {
		IsActive *bool `json:"is_active"`
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return false, err
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return false, errors.New("invalid json body")
		}
		if body.IsActive != nil {
			return *body.IsActive, nil
		}
	}
	if v := r.URL.Query().Get("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid is_active %q", v)
		}
		return b, nil
	}
	return false, errors.New("is_active is required")
}

func (s *Server) handleStrategyDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, err := s.deleteStrategy(ctx, id)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if !ok {
		writeError(w, 404, "Strategy not found")
		return
	}
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

func (s *Server) respondStrategy(ctx context.Context, w http.ResponseWriter, code int, id int64) {
	st, err := s.getStrategy(ctx, id)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if st == nil {
		writeError(w, 404, "Strategy not found")
		return
	}
	writeJSON(w, code, st)
}
