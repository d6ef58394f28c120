package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gsm-api/internal/logger"
)

// LoadOrCreateTelescope：ON CONFLICT 更新后 RETURNING，避免先查后插的竞争
func (s *Postgres) LoadOrCreateTelescope(ctx context.Context, t Telescope, overwrite bool) (Telescope, error) {
	row := s.db.QueryRowContext(ctx, `INSERT INTO telescopes(name, frequency_min, frequency_max, ingested)
        VALUES($1, $2, $3, FALSE)
        ON CONFLICT (name) DO UPDATE SET ingested = CASE WHEN $4 THEN FALSE ELSE telescopes.ingested END
        RETURNING id, name, frequency_min, frequency_max, ingested`, t.Name, t.FrequencyMin, t.FrequencyMax, overwrite)
	var out Telescope
	if err := row.Scan(&out.ID, &out.Name, &out.FrequencyMin, &out.FrequencyMax, &out.Ingested); err != nil {
		return Telescope{}, unavailable("load telescope", err)
	}
	logger.L().Debug("db_telescope", "name", out.Name, "id", out.ID, "ingested", out.Ingested, "overwrite", overwrite)
	return out, nil
}

func (s *Postgres) MarkIngested(ctx context.Context, telescopeID int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE telescopes SET ingested=TRUE WHERE id=$1", telescopeID); err != nil {
		return unavailable("mark ingested", err)
	}
	return nil
}

func (s *Postgres) LoadOrCreateBands(ctx context.Context, telescopeID int64, centres []float64) (map[float64]Band, error) {
	out := make(map[float64]Band, len(centres))
	for _, c := range centres {
		var b Band
		err := s.db.QueryRowContext(ctx, `INSERT INTO bands(telescope_id, centre) VALUES($1, $2)
            ON CONFLICT (telescope_id, centre) DO UPDATE SET centre=EXCLUDED.centre
            RETURNING id, telescope_id, centre, width`, telescopeID, c).Scan(&b.ID, &b.TelescopeID, &b.Centre, &b.Width)
		if err != nil {
			return nil, unavailable("load band", err)
		}
		out[c] = b
	}
	return out, nil
}

const (
	insertSourceSQL = `INSERT INTO sources(name, telescope_id, ra_deg, ra_error, dec_deg, dec_error, cell_id,
        major_axis, major_axis_error, minor_axis, minor_axis_error, position_angle, position_angle_error,
        flux_wide, flux_wide_error, fov)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (telescope_id, name) DO NOTHING
        RETURNING id`
	insertWideSQL = `INSERT INTO wide_band_data(source_id, telescope_id, bck_wide, local_rms_wide, int_flux_wide, int_flux_wide_error,
        resid_mean_wide, resid_sd_wide, abs_flux_pct_error, fit_flux_pct_error, a_psf_wide, b_psf_wide, pa_psf_wide,
        spectral_index, spectral_index_error)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	insertNarrowSQL = `INSERT INTO narrow_band_data(source_id, band_id, bck, local_rms, int_flux, int_flux_error,
        resid_mean, resid_sd, a_psf, b_psf, pa_psf, a, b, pa, flux, flux_error)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
)

// WriteBatch：一批记录一个事务，语句在事务内预编译
func (s *Postgres) WriteBatch(ctx context.Context, telescopeID int64, recs []SourceRecord) (inserted, skipped int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, unavailable("begin batch", err)
	}
	defer tx.Rollback()

	stmtSrc, err := tx.PrepareContext(ctx, insertSourceSQL)
	if err != nil {
		return 0, 0, unavailable("prepare source", err)
	}
	defer stmtSrc.Close()
	stmtWide, err := tx.PrepareContext(ctx, insertWideSQL)
	if err != nil {
		return 0, 0, unavailable("prepare wide band", err)
	}
	defer stmtWide.Close()
	stmtNarrow, err := tx.PrepareContext(ctx, insertNarrowSQL)
	if err != nil {
		return 0, 0, unavailable("prepare narrow band", err)
	}
	defer stmtNarrow.Close()

	for _, r := range recs {
		src := r.Source
		var id int64
		err := stmtSrc.QueryRowContext(ctx, src.Name, telescopeID, src.RA, src.RAError, src.Dec, src.DecError, int64(src.Position),
			src.MajorAxis, src.MajorAxisError, src.MinorAxis, src.MinorAxisError, src.PositionAngle, src.PositionAngleError,
			src.FluxWide, src.FluxWideError, src.FOV).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			skipped++
			continue
		}
		if err != nil {
			return 0, 0, unavailable(fmt.Sprintf("insert source %q", src.Name), err)
		}
		if w := r.Wide; w != nil {
			if _, err := stmtWide.ExecContext(ctx, id, telescopeID, w.Bck, w.LocalRMS, w.IntFlux, w.IntFluxError,
				w.ResidMean, w.ResidSD, w.AbsFluxPctError, w.FitFluxPctError, w.APSF, w.BPSF, w.PAPSF,
				w.SpectralIndex, w.SpectralIndexError); err != nil {
				return 0, 0, unavailable("insert wide band", err)
			}
		}
		for _, n := range r.Narrow {
			if _, err := stmtNarrow.ExecContext(ctx, id, n.BandID, n.Bck, n.LocalRMS, n.IntFlux, n.IntFluxError,
				n.ResidMean, n.ResidSD, n.APSF, n.BPSF, n.PAPSF, n.A, n.B, n.PA, n.Flux, n.FluxError); err != nil {
				return 0, 0, unavailable("insert narrow band", err)
			}
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, unavailable("commit batch", err)
	}
	return inserted, skipped, nil
}

func (s *Postgres) RecordIngestRun(ctx context.Context, run IngestRun) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO ingest_runs(id, telescope, file, started_at, finished_at, inserted, skipped, status, error)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''))
        ON CONFLICT (id) DO UPDATE SET finished_at=EXCLUDED.finished_at, inserted=EXCLUDED.inserted,
            skipped=EXCLUDED.skipped, status=EXCLUDED.status, error=EXCLUDED.error`,
		run.ID, run.Telescope, run.File, run.StartedAt, nullTime(run.FinishedAt), run.Inserted, run.Skipped, run.Status, run.Error)
	if err != nil {
		return unavailable("record ingest run", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
