package save

import (
	"context"
	"fmt"
	"time"

	"backend-theentity/internal/pursuit"

	"github.com/jackc/pgx/v5"
)

// Mutation is the handle passed to Mutate callbacks. It exposes the locked
// save and writes engine outcomes both to the transaction and to that save.
type Mutation struct {
	ctx  context.Context
	tx   pgx.Tx
	save pursuit.Save
}

// Save returns the locked save with every change recorded so far.
func (m *Mutation) Save() pursuit.Save {
	return m.save
}

// Mutate runs fn inside a transaction holding the save row lock. Any error
// returned by fn rolls the transaction back and is returned unchanged.
func (s *Store) Mutate(ctx context.Context, playerID string, fn func(m *Mutation) error) (pursuit.Save, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return pursuit.Save{}, fmt.Errorf("begin: %w", err)
	}

	current, err := load(ctx, tx, playerID, true)
	if err != nil {
		_ = tx.Rollback(ctx)
		return pursuit.Save{}, err
	}

	m := &Mutation{ctx: ctx, tx: tx, save: current}
	if err := fn(m); err != nil {
		_ = tx.Rollback(ctx)
		return pursuit.Save{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return pursuit.Save{}, fmt.Errorf("commit: %w", err)
	}
	return m.save, nil
}

// delta is a set of commutative changes to one saves row.
type delta struct {
	km          float64
	pausedHours float64
	battery     int
	emitter     int
	casing      int
	empUses     int
	boostUses   int
	continues   int
	freeEMP     bool
	freeBoost   bool
	lastEMP     *time.Time
	speed       *float64
	speedDay    *int
	questDay    *int
}

func (d *delta) grant(part pursuit.Part, n int) {
	switch part {
	case pursuit.PartBattery:
		d.battery += n
	case pursuit.PartEmitter:
		d.emitter += n
	case pursuit.PartCasing:
		d.casing += n
	}
}

func (d *delta) setSpeed(c *pursuit.SpeedChange) {
	if c == nil {
		return
	}
	speed, day := c.Speed, c.Day
	d.speed = &speed
	d.speedDay = &day
}

func (m *Mutation) writeDelta(d delta) error {
	_, err := m.tx.Exec(m.ctx, `
		UPDATE saves SET
			total_km_run = GREATEST(0, total_km_run + $2),
			total_paused_hours = total_paused_hours + $3,
			inventory_battery = inventory_battery + $4,
			inventory_emitter = inventory_emitter + $5,
			inventory_casing = inventory_casing + $6,
			emp_usage_count = emp_usage_count + $7,
			boost_usage_count = boost_usage_count + $8,
			continues_used = continues_used + $9,
			free_emp_claimed = free_emp_claimed OR $10,
			free_boost_claimed = free_boost_claimed OR $11,
			last_emp_usage = COALESCE($12, last_emp_usage),
			entity_speed = COALESCE($13, entity_speed),
			last_speed_update_day = COALESCE($14, last_speed_update_day),
			last_quest_generation_day = COALESCE($15, last_quest_generation_day),
			version = version + 1,
			updated_at = now()
		WHERE player_id=$1
	`, m.save.PlayerID, d.km, d.pausedHours, d.battery, d.emitter, d.casing,
		d.empUses, d.boostUses, d.continues, d.freeEMP, d.freeBoost,
		d.lastEMP, d.speed, d.speedDay, d.questDay)
	if err != nil {
		return fmt.Errorf("update save: %w", err)
	}
	m.save.Version++
	return nil
}

func (m *Mutation) insertRun(r pursuit.Run) error {
	tag, err := m.tx.Exec(m.ctx, `
		INSERT INTO runs (id, player_id, run_date, km, credited_km, notes, run_type, source, strava_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT DO NOTHING
	`, r.ID, m.save.PlayerID, r.Date, r.Km, r.Credited, r.Notes, string(r.Type), string(r.Source), nullString(r.StravaID))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRun
	}
	return nil
}

// updateQuest stores progress or a status change. Only open quests move.
func (m *Mutation) updateQuest(q *pursuit.Quest) error {
	if q == nil {
		return nil
	}
	tag, err := m.tx.Exec(m.ctx, `
		UPDATE quests SET progress_km=$2, status=$3
		WHERE id=$1 AND status IN ('available', 'active')
	`, q.ID, q.Progress, string(q.Status))
	if err != nil {
		return fmt.Errorf("update quest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quest %s is no longer open", q.ID)
	}
	return nil
}

func (m *Mutation) insertBadge(b *pursuit.Badge) error {
	if b == nil {
		return nil
	}
	_, err := m.tx.Exec(m.ctx, `
		INSERT INTO badges (id, player_id, title, earned_at)
		VALUES ($1,$2,$3,$4)
	`, b.ID, m.save.PlayerID, b.Title, b.Date)
	if err != nil {
		return fmt.Errorf("insert badge: %w", err)
	}
	return nil
}

// writeOutcome persists the rows of an ingestion and folds its save-level
// changes into d.
func (m *Mutation) writeOutcome(o pursuit.Outcome, d *delta) error {
	if err := m.insertRun(o.Run); err != nil {
		return err
	}
	if err := m.updateQuest(o.Quest); err != nil {
		return err
	}
	if err := m.insertBadge(o.Badge); err != nil {
		return err
	}
	d.km += o.Run.Credited
	d.grant(o.Reward, 1)
	d.setSpeed(o.Speed)
	return nil
}

// Ingest records a run outcome. Duplicate outcomes are a no-op.
func (m *Mutation) Ingest(o pursuit.Outcome) error {
	if o.Duplicate {
		return nil
	}
	var d delta
	if err := m.writeOutcome(o, &d); err != nil {
		return err
	}
	if err := m.writeDelta(d); err != nil {
		return err
	}
	m.save.Apply(o)
	return nil
}

func (m *Mutation) EMP(o pursuit.EMPOutcome) error {
	usedAt := o.UsedAt
	d := delta{pausedHours: o.PausedHours, empUses: 1, freeEMP: true, lastEMP: &usedAt}
	if o.Crafted {
		d.battery, d.emitter, d.casing = -1, -1, -1
	}
	if err := m.writeDelta(d); err != nil {
		return err
	}
	m.save.ApplyEMP(o)
	return nil
}

func (m *Mutation) Boost(o pursuit.BoostOutcome) error {
	d := delta{boostUses: 1, freeBoost: o.Free}
	if err := m.writeOutcome(o.Ingest, &d); err != nil {
		return err
	}
	if err := m.writeDelta(d); err != nil {
		return err
	}
	m.save.ApplyBoost(o)
	return nil
}

func (m *Mutation) Continue(o pursuit.ContinueOutcome) error {
	if err := m.writeDelta(delta{pausedHours: o.PausedHours, continues: 1}); err != nil {
		return err
	}
	m.save.ApplyContinue(o)
	return nil
}

// Tick persists a speed change and a new quest offer. Empty ticks write nothing.
func (m *Mutation) Tick(t pursuit.TickOutcome) error {
	if t.Empty() {
		return nil
	}
	var d delta
	d.setSpeed(t.Speed)
	if q := t.Offer; q != nil {
		_, err := m.tx.Exec(m.ctx, `
			INSERT INTO quests (id, player_id, title, distance_km, progress_km, reward_part, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, q.ID, m.save.PlayerID, q.Title, q.Distance, q.Progress, string(q.RewardPart), string(q.Status), q.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert quest: %w", err)
		}
		day := t.OfferDay
		d.questDay = &day
	}
	if err := m.writeDelta(d); err != nil {
		return err
	}
	m.save.ApplyTick(t)
	return nil
}

// Quest stores an accept or discard transition.
func (m *Mutation) Quest(q pursuit.Quest) error {
	if err := m.updateQuest(&q); err != nil {
		return err
	}
	if err := m.writeDelta(delta{}); err != nil {
		return err
	}
	m.save.ApplyQuest(q)
	return nil
}

func (m *Mutation) DeleteRun(r pursuit.Run) error {
	if _, err := m.tx.Exec(m.ctx, `DELETE FROM runs WHERE id=$1 AND player_id=$2`, r.ID, m.save.PlayerID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if err := m.writeDelta(delta{km: -r.Credited}); err != nil {
		return err
	}
	m.save.ApplyDelete(r)
	return nil
}

func (m *Mutation) Convert(c pursuit.Conversion) error {
	_, err := m.tx.Exec(m.ctx, `
		UPDATE runs SET run_type=$3, notes=$4, credited_km=$5
		WHERE id=$1 AND player_id=$2
	`, c.Run.ID, m.save.PlayerID, string(c.Run.Type), c.Run.Notes, c.Run.Credited)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err := m.updateQuest(c.Quest); err != nil {
		return err
	}
	if err := m.insertBadge(c.Badge); err != nil {
		return err
	}
	d := delta{km: c.KmDelta()}
	d.grant(c.Reward, 1)
	if err := m.writeDelta(d); err != nil {
		return err
	}
	m.save.ApplyConversion(c)
	return nil
}
