package reminder

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shifohub/patient-comms/internal/bot"
	"github.com/shifohub/patient-comms/internal/outbound"
	"github.com/shifohub/patient-comms/internal/patients"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type patientLister interface {
	ListAll(ctx context.Context) ([]patients.PatientRecord, error)
}

type outboundCreator interface {
	Create(ctx context.Context, msg *outbound.Message) error
}

// Producer enqueues day-ahead injection reminders once per day at a fixed
// local hour. Failures are logged per patient and not retried within the
// same run.
type Producer struct {
	patients patientLister
	outbound outboundCreator
	logger   *logging.Logger
	hour     int
	location *time.Location
	now      func() time.Time
}

// NewProducer builds the reminder producer. hour is the local hour of day
// to run at.
func NewProducer(store patientLister, creator outboundCreator, hour int, loc *time.Location, logger *logging.Logger) *Producer {
	if store == nil || creator == nil {
		panic("reminder: missing dependency")
	}
	if loc == nil {
		loc = time.UTC
	}
	if hour < 0 || hour > 23 {
		hour = 9
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Producer{
		patients: store,
		outbound: creator,
		logger:   logger,
		hour:     hour,
		location: loc,
		now:      time.Now,
	}
}

func (p *Producer) WithClock(now func() time.Time) *Producer {
	p.now = now
	return p
}

// Run fires RunOnce at the configured hour every day until ctx ends.
func (p *Producer) Run(ctx context.Context) {
	for {
		wait := p.untilNextRun()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.RunOnce(ctx)
		}
	}
}

func (p *Producer) untilNextRun() time.Duration {
	now := p.now().In(p.location)
	next := time.Date(now.Year(), now.Month(), now.Day(), p.hour, 0, 0, 0, p.location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// RunOnce scans all patients and enqueues one immediate reminder per
// patient with a bound chat and an injection scheduled for tomorrow.
// Fan-out across patients is concurrent.
func (p *Producer) RunOnce(ctx context.Context) {
	tomorrow := p.now().In(p.location).AddDate(0, 0, 1).Format("2006-01-02")

	records, err := p.patients.ListAll(ctx)
	if err != nil {
		p.logger.Error("patient scan failed", "error", err)
		return
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for i := range records {
		rec := records[i]
		if rec.ChatID == "" {
			continue
		}
		inj, ok := injectionOn(rec, tomorrow)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.remind(ctx, rec, inj, tomorrow); err != nil {
				p.logger.Error("reminder enqueue failed", "error", err, "patient_id", rec.ID)
				return
			}
			mu.Lock()
			sent++
			mu.Unlock()
		}()
	}
	wg.Wait()

	p.logger.Info("reminder run finished", "date", tomorrow, "sent", sent, "patients", len(records))
}

func (p *Producer) remind(ctx context.Context, rec patients.PatientRecord, inj patients.Injection, tomorrow string) error {
	chatID, err := strconv.ParseInt(rec.ChatID, 10, 64)
	if err != nil {
		return err
	}
	return p.outbound.Create(ctx, &outbound.Message{
		ChatID: chatID,
		Action: outbound.ActionSend,
		Text:   bot.ReminderMessage(rec.Language, tomorrow, inj.Drug),
	})
}

func injectionOn(rec patients.PatientRecord, day string) (patients.Injection, bool) {
	for _, inj := range rec.Injections {
		if inj.ScheduledOn(day) {
			return inj, true
		}
	}
	return patients.Injection{}, false
}
