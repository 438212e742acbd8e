package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/civiltime"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/database"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/domain"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/events"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/metrics"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/policy"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/pricing"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/schedule"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/worker"
)

// CreateRequest carries everything create() needs. Actor is the identity
// performing the call; for self-service bookings it equals Owner.
type CreateRequest struct {
	ResourceID       int64
	Owner            string
	OwnerGroup       string
	Start            time.Time
	End              time.Time
	Experiment       string
	Probe            string
	Billing          string
	ClientAccount    string
	ClientPriceCents int64
	Actor            string
	Privileged       bool
}

// ReservationService drives the reservation lifecycle: it validates slot
// alignment, resolves conflicts, enforces policy, prices the booking and
// persists the result atomically.
type ReservationService struct {
	repo      domain.Repository
	grid      *schedule.Grid
	policies  *policy.Engine
	rates     *pricing.Engine
	eventBus  domain.EventPublisher
	cache     domain.SheetCache
	clock     domain.Clock
	resources map[int64]models.Resource
	approval  []ApprovalPredicate
	retry     worker.RetryPolicy
	logger    *zerolog.Logger
}

func NewReservationService(
	repo domain.Repository,
	grid *schedule.Grid,
	policies *policy.Engine,
	rates *pricing.Engine,
	resources []models.Resource,
	approval []ApprovalPredicate,
	eventBus domain.EventPublisher,
	cache domain.SheetCache,
	clock domain.Clock,
	retry worker.RetryPolicy,
	logger *zerolog.Logger,
) *ReservationService {
	byID := make(map[int64]models.Resource, len(resources))
	for _, r := range resources {
		byID[r.ID] = r
	}
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = models.DefaultCreateRetries
	}
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &ReservationService{
		repo:      repo,
		grid:      grid,
		policies:  policies,
		rates:     rates,
		eventBus:  eventBus,
		cache:     cache,
		clock:     clock,
		resources: byID,
		approval:  approval,
		retry:     retry,
		logger:    logger,
	}
}

// Resources returns the configured instrument list ordered by id.
func (s *ReservationService) Resources() []models.Resource {
	out := make([]models.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create runs the full booking pipeline: alignment, conflict, caps, pricing,
// approval requirement, then one atomic insert with bounded retry on
// transient store contention.
func (s *ReservationService) Create(ctx context.Context, req CreateRequest) (*models.Reservation, error) {
	res, ok := s.resources[req.ResourceID]
	if !ok {
		return nil, s.reject(newError(KindNotFound, "unknown resource %d", req.ResourceID))
	}
	if !res.Visible && !req.Privileged {
		return nil, s.reject(newError(KindNotFound, "unknown resource %d", req.ResourceID))
	}
	if res.Status == models.ResourceStatusDown {
		return nil, s.reject(newError(KindValidation, "%s is out of service: %s", res.Name, res.StatusNote))
	}
	if req.Owner == "" || req.Experiment == "" {
		return nil, s.reject(newError(KindValidation, "owner and experiment are required"))
	}

	if req.Billing == "" {
		req.Billing = models.BillingInternal
	}
	if req.Billing == models.BillingClient && !req.Privileged {
		return nil, s.reject(newError(KindAuthorization, "client billing requires a privileged actor"))
	}

	if req.Probe == "" {
		req.Probe = res.DefaultProbe
	}
	if req.Probe != "" && len(res.Probes) > 0 && !res.HasProbe(req.Probe) {
		return nil, s.reject(newError(KindValidation, "probe %q is not available on %s", req.Probe, res.Name))
	}

	slot, err := s.grid.Align(res, req.Start, req.End)
	if err != nil {
		if errors.Is(err, schedule.ErrNotAligned) {
			return nil, s.reject(wrapError(KindValidation, err, "slot is not aligned to the booking grid"))
		}
		return nil, wrapError(KindInternal, err, "slot grid generation failed")
	}

	now := s.clock.Now()
	if !slot.End.After(now) {
		return nil, s.reject(newError(KindValidation, "slot has already ended"))
	}
	advance := res.AdvanceDays
	if advance <= 0 {
		advance = models.DefaultAdvanceDays
	}
	if slot.Start.After(now.AddDate(0, 0, advance)) {
		return nil, s.reject(newError(KindValidation, "%s can be booked at most %d days ahead", res.Name, advance))
	}

	if blocking, err := s.findBlocking(ctx, res.ID, slot); err != nil {
		return nil, err
	} else if blocking != nil {
		return nil, s.reject(newError(KindConflict, "slot is blocked by %s: %s", blocking.Kind, blocking.Detail))
	}

	if err := s.policies.CheckCap(ctx, res.ID, req.Owner, slot, req.Billing); err != nil {
		var capErr *policy.CapError
		if errors.As(err, &capErr) {
			return nil, s.reject(wrapError(KindPolicy, err, "usage cap exceeded"))
		}
		return nil, wrapError(KindInternal, err, "cap aggregation failed")
	}

	priceCents := req.ClientPriceCents
	if req.Billing == models.BillingInternal {
		priceCents, err = s.rates.Price(res.ID, req.Experiment, req.Probe,
			civiltime.DateOf(slot.Start, s.grid.Location()), slot.End.Sub(slot.Start))
		if err != nil {
			return nil, s.reject(wrapError(KindValidation, err, "booking cannot be priced"))
		}
	}

	status := models.StatusApproved
	if reason, required := approvalReason(s.approval, res, req); required {
		status = models.StatusPending
		s.logger.Info().Int64("resource_id", res.ID).Str("owner", req.Owner).
			Str("reason", reason).Msg("reservation needs approval")
	}

	r := &models.Reservation{
		Ref:           uuid.NewString(),
		ResourceID:    res.ID,
		ResourceName:  res.Name,
		Owner:         req.Owner,
		OwnerGroup:    req.OwnerGroup,
		Start:         slot.Start,
		End:           slot.End,
		Label:         slot.Label,
		Experiment:    req.Experiment,
		Probe:         req.Probe,
		Billing:       req.Billing,
		ClientAccount: req.ClientAccount,
		PriceCents:    priceCents,
		Status:        status,
		CreatedBy:     req.Actor,
	}

	guards := s.policies.Guards(res.ID, req.Owner, slot, req.Billing)
	if err := s.insertWithRetry(ctx, r, guards); err != nil {
		return nil, err
	}

	metrics.IncReservationCreated(status)
	s.publish(events.EventReservationCreated, r, req.Actor)
	return r, nil
}

// insertWithRetry commits the reservation, retrying transient store
// contention a bounded number of times. A lost race against an overlapping
// insert is an ordinary conflict, never retried into success; the same holds
// for a cap ceiling consumed by a concurrent create.
func (s *ReservationService) insertWithRetry(ctx context.Context, r *models.Reservation, guards []models.CapGuard) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.repo.CreateReservationLocked(ctx, r, guards)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, database.ErrNotAvailable):
			metrics.IncReservationRejected(string(KindConflict))
			return wrapError(KindConflict, err, "slot was taken concurrently")
		case errors.Is(err, database.ErrBlackout):
			metrics.IncReservationRejected(string(KindConflict))
			return wrapError(KindConflict, err, "slot falls in a blackout window")
		case errors.Is(err, database.ErrCapExceeded):
			metrics.IncReservationRejected(string(KindPolicy))
			return wrapError(KindPolicy, err, "usage cap exceeded")
		case !isTransient(err):
			return wrapError(KindInternal, err, "reservation insert failed")
		}

		if attempt > s.retry.MaxRetries {
			break
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("transient store error, retrying create")
		if waitErr := s.retry.Wait(ctx, attempt); waitErr != nil {
			return wrapError(KindInternal, waitErr, "create aborted while backing off")
		}
	}
	return wrapError(KindConflict, err, "store stayed contended across retries")
}

// isTransient matches SQLite lock contention, the only store error worth a
// second attempt.
func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}

// findBlocking checks blackouts (maintenance before training) and active
// reservations for the candidate slot.
func (s *ReservationService) findBlocking(ctx context.Context, resourceID int64, slot models.Slot) (*schedule.Blocking, error) {
	blackouts, err := s.repo.ListBlackouts(ctx, resourceID, slot.Start, slot.End)
	if err != nil {
		return nil, wrapError(KindInternal, err, "blackout lookup failed")
	}
	reservations, err := s.repo.ListOverlapping(ctx, resourceID, slot.Start, slot.End)
	if err != nil {
		return nil, wrapError(KindInternal, err, "occupancy lookup failed")
	}
	return schedule.FindBlocking(slot, blackouts, reservations), nil
}

// Approve moves a PENDING reservation to APPROVED.
func (s *ReservationService) Approve(ctx context.Context, id int64, actor string, privileged bool) (*models.Reservation, error) {
	if !privileged {
		return nil, newError(KindAuthorization, "approve requires a privileged actor")
	}
	r, err := s.getForTransition(ctx, id, models.StatusPending)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatusWithVersion(ctx, id, r.Version, models.StatusApproved); err != nil {
		return nil, s.transitionError(err)
	}

	metrics.IncReservationTransition("approve")
	return s.reload(ctx, id, events.EventReservationApproved, actor)
}

// Deny moves a PENDING reservation to CANCELED, recording the actor as the
// canceler.
func (s *ReservationService) Deny(ctx context.Context, id int64, actor string, privileged bool) (*models.Reservation, error) {
	if !privileged {
		return nil, newError(KindAuthorization, "deny requires a privileged actor")
	}
	r, err := s.getForTransition(ctx, id, models.StatusPending)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkCanceled(ctx, id, r.Version, models.StatusCanceled, actor, "denied"); err != nil {
		return nil, s.transitionError(err)
	}

	metrics.IncReservationTransition("deny")
	return s.reload(ctx, id, events.EventReservationDenied, actor)
}

// Cancel handles an owner's (or privileged actor's) cancellation of an
// APPROVED reservation. Outside the cutoff it cancels immediately; at or
// inside the cutoff it parks in CANCEL_PENDING for reviewer confirmation,
// still occupying the slot.
func (s *ReservationService) Cancel(ctx context.Context, id int64, requester string, privileged bool, reason string) (*models.Reservation, error) {
	r, err := s.getForTransition(ctx, id, models.StatusApproved)
	if err != nil {
		return nil, err
	}
	if r.Owner != requester && !privileged {
		return nil, newError(KindAuthorization, "only the owner or a privileged actor can cancel")
	}

	outcome := s.policies.CancelOutcome(s.clock.Now(), r.ResourceID, r.Label, r.Start)
	if err := s.repo.MarkCanceled(ctx, id, r.Version, outcome, requester, reason); err != nil {
		return nil, s.transitionError(err)
	}

	eventType := events.EventReservationCanceled
	if outcome == models.StatusCancelPending {
		eventType = events.EventCancelRequested
	}
	metrics.IncReservationTransition("cancel")
	return s.reload(ctx, id, eventType, requester)
}

// ResolveCancel confirms or rejects a deferred cancellation.
func (s *ReservationService) ResolveCancel(ctx context.Context, id int64, actor string, privileged bool, accept bool) (*models.Reservation, error) {
	if !privileged {
		return nil, newError(KindAuthorization, "resolving a cancellation requires a privileged actor")
	}
	r, err := s.getForTransition(ctx, id, models.StatusCancelPending)
	if err != nil {
		return nil, err
	}

	if accept {
		if err := s.repo.MarkCanceled(ctx, id, r.Version, models.StatusCanceled, r.CanceledBy, r.CancelReason); err != nil {
			return nil, s.transitionError(err)
		}
		metrics.IncReservationTransition("cancel_confirmed")
		return s.reload(ctx, id, events.EventReservationCanceled, actor)
	}

	if err := s.repo.ClearCancelRequest(ctx, id, r.Version); err != nil {
		return nil, s.transitionError(err)
	}
	metrics.IncReservationTransition("cancel_rejected")
	return s.reload(ctx, id, events.EventCancelRejected, actor)
}

// Remove archives an APPROVED or CANCELED reservation whose end lies in the
// past. The reason is mandatory and persisted; the record stays for audit.
func (s *ReservationService) Remove(ctx context.Context, id int64, actor string, privileged bool, reason string) (*models.Reservation, error) {
	if !privileged {
		return nil, newError(KindAuthorization, "remove requires a privileged actor")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, newError(KindValidation, "removal reason must not be empty")
	}

	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, id)
	}
	if r.Status != models.StatusApproved && r.Status != models.StatusCanceled {
		return nil, newError(KindPolicy, "cannot remove a %s reservation", r.Status)
	}
	if !r.End.Before(s.clock.Now()) {
		return nil, newError(KindValidation, "only past reservations can be removed")
	}

	if err := s.repo.MarkRemoved(ctx, id, r.Version, actor, reason); err != nil {
		return nil, s.transitionError(err)
	}
	metrics.IncReservationTransition("remove")
	return s.reload(ctx, id, events.EventReservationRemoved, actor)
}

// visibleResource resolves a resource id for the caller. Unknown ids and
// invisible resources read by unprivileged callers both come back NotFound,
// so visibility is indistinguishable from nonexistence.
func (s *ReservationService) visibleResource(resourceID int64, privileged bool) (models.Resource, error) {
	res, ok := s.resources[resourceID]
	if !ok || (!res.Visible && !privileged) {
		return models.Resource{}, newError(KindNotFound, "unknown resource %d", resourceID)
	}
	return res, nil
}

// ListSlots returns the pure slot grid for the resource and civil day.
func (s *ReservationService) ListSlots(ctx context.Context, resourceID int64, day civiltime.Date, privileged bool) ([]models.Slot, error) {
	res, err := s.visibleResource(resourceID, privileged)
	if err != nil {
		return nil, err
	}
	slots, err := s.grid.Slots(res, day)
	if err != nil {
		return nil, wrapError(KindInternal, err, "slot grid generation failed")
	}
	return slots, nil
}

// DaySheet returns the grid for one resource and day together with its
// occupancy, served from the cache when possible.
func (s *ReservationService) DaySheet(ctx context.Context, resourceID int64, day civiltime.Date, privileged bool) (*models.DaySheet, error) {
	if _, err := s.visibleResource(resourceID, privileged); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if sheet, err := s.cache.Get(ctx, resourceID, day.String()); err != nil {
			s.logger.Warn().Err(err).Msg("day sheet cache read failed")
		} else if sheet != nil {
			return sheet, nil
		}
	}

	slots, err := s.ListSlots(ctx, resourceID, day, privileged)
	if err != nil {
		return nil, err
	}
	gridStart := slots[0].Start
	gridEnd := slots[len(slots)-1].End

	occupied, err := s.repo.ListOverlapping(ctx, resourceID, gridStart, gridEnd)
	if err != nil {
		return nil, wrapError(KindInternal, err, "occupancy lookup failed")
	}
	blackouts, err := s.repo.ListBlackouts(ctx, resourceID, gridStart, gridEnd)
	if err != nil {
		return nil, wrapError(KindInternal, err, "blackout lookup failed")
	}

	sheet := &models.DaySheet{
		ResourceID: resourceID,
		Date:       day.String(),
		Slots:      slots,
		Occupied:   occupied,
		Blackouts:  blackouts,
		RenderedAt: s.clock.Now(),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, sheet); err != nil {
			s.logger.Warn().Err(err).Msg("day sheet cache write failed")
		}
	}
	return sheet, nil
}

// ListOccupied returns active reservations overlapping [from, to).
func (s *ReservationService) ListOccupied(ctx context.Context, resourceID int64, from, to time.Time, privileged bool) ([]models.Reservation, error) {
	if _, err := s.visibleResource(resourceID, privileged); err != nil {
		return nil, err
	}
	out, err := s.repo.ListOverlapping(ctx, resourceID, from, to)
	if err != nil {
		return nil, wrapError(KindInternal, err, "occupancy lookup failed")
	}
	return out, nil
}

// ListBlackouts returns blackout windows overlapping [from, to).
func (s *ReservationService) ListBlackouts(ctx context.Context, resourceID int64, from, to time.Time, privileged bool) ([]models.Blackout, error) {
	if _, err := s.visibleResource(resourceID, privileged); err != nil {
		return nil, err
	}
	out, err := s.repo.ListBlackouts(ctx, resourceID, from, to)
	if err != nil {
		return nil, wrapError(KindInternal, err, "blackout lookup failed")
	}
	return out, nil
}

// ListPending returns reservations awaiting review. Callers derive their own
// badge counts from this; the engine keeps no counters.
func (s *ReservationService) ListPending(ctx context.Context) ([]models.Reservation, error) {
	out, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, wrapError(KindInternal, err, "pending lookup failed")
	}
	return out, nil
}

// ListAll returns reservations matching the filter.
func (s *ReservationService) ListAll(ctx context.Context, f models.ReservationFilter) ([]models.Reservation, error) {
	out, err := s.repo.ListReservations(ctx, f)
	if err != nil {
		return nil, wrapError(KindInternal, err, "reservation query failed")
	}
	return out, nil
}

// Get returns one reservation by id.
func (s *ReservationService) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, id)
	}
	return r, nil
}

func (s *ReservationService) getForTransition(ctx context.Context, id int64, wantStatus string) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, id)
	}
	if r.Status != wantStatus {
		return nil, newError(KindPolicy, "reservation is %s, expected %s", r.Status, wantStatus)
	}
	return r, nil
}

func (s *ReservationService) lookupError(err error, id int64) error {
	if errors.Is(err, database.ErrReservationNotFound) {
		return newError(KindNotFound, "reservation %d not found", id)
	}
	return wrapError(KindInternal, err, "reservation lookup failed")
}

func (s *ReservationService) transitionError(err error) error {
	if errors.Is(err, database.ErrConcurrentModification) {
		return wrapError(KindConflict, err, "reservation changed concurrently, reload and retry")
	}
	return wrapError(KindInternal, err, "reservation update failed")
}

func (s *ReservationService) reload(ctx context.Context, id int64, eventType, actor string) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, id)
	}
	s.publish(eventType, r, actor)
	return r, nil
}

func (s *ReservationService) reject(err *Error) error {
	metrics.IncReservationRejected(string(err.Kind))
	return err
}

func (s *ReservationService) publish(eventType string, r *models.Reservation, actor string) {
	if s.eventBus == nil {
		return
	}

	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		Ref:           r.Ref,
		ResourceID:    r.ResourceID,
		Owner:         r.Owner,
		Status:        r.Status,
		Label:         r.Label,
		Start:         r.Start,
		End:           r.End,
		GridDates:     []string{s.gridDate(r.Start)},
		ActorID:       actor,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

// gridDate maps a reservation start to the civil day whose grid owns it.
func (s *ReservationService) gridDate(start time.Time) string {
	dt := civiltime.ToCivil(start, s.grid.Location())
	day := dt.Date
	if dt.Hour < models.GridStartHour {
		day = day.AddDays(-1)
	}
	return day.String()
}
