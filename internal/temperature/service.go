package temperature

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/thermistor-controller/db"
	"github.com/thatsimonsguy/thermistor-controller/internal/calibration"
	"github.com/thatsimonsguy/thermistor-controller/internal/config"
	"github.com/thatsimonsguy/thermistor-controller/internal/controller"
	"github.com/thatsimonsguy/thermistor-controller/internal/model"
	"github.com/thatsimonsguy/thermistor-controller/internal/thermistor"
	"github.com/thatsimonsguy/thermistor-controller/internal/units"
)

var ErrInvalidSetpoint = db.ErrInvalidSetpoint

// pruneEvery is how many ticks pass between history trims.
const pruneEvery = 100

// TemperatureSource is what status readers (HTTP, CLI) need from the loop.
type TemperatureSource interface {
	CurrentTemperature() float64
	Setpoint() float64
}

// SetpointSink accepts setpoint updates from outside the loop.
type SetpointSink interface {
	SetSetpoint(value float64) error
}

type Sampler interface {
	Sample(ctx context.Context) (model.Reading, error)
}

type Actuator interface {
	Drive(out model.ControlOutput) error
}

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

type Metrics interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
}

// Deps holds the hardware and reporting collaborators.
type Deps struct {
	Sampler  Sampler
	Actuator Actuator
	Notifier Notifier
	Metrics  Metrics
}

// Snapshot is a consistent copy of the loop state.
type Snapshot struct {
	TemperatureC   float64             `json:"temperature_c"`
	TemperatureF   float64             `json:"temperature_f"`
	SetpointF      float64             `json:"setpoint_f"`
	Status         model.Status        `json:"status"`
	ControlEnabled bool                `json:"control_enabled"`
	Output         model.ControlOutput `json:"output"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Service owns the sampling/control loop and the temperature and setpoint it shares
// with external readers.
type Service struct {
	dbConn     *sql.DB
	converter  *thermistor.Converter
	controller *controller.Proportional

	interval       time.Duration
	sampleTimeout  time.Duration
	controlEnabled bool
	historyLimit   int
	setpointMinF   float64
	setpointMaxF   float64

	sampler  Sampler
	actuator Actuator
	notifier Notifier
	metrics  Metrics

	// tickMu serializes ticks, setpointMu serializes setpoint writes so the
	// database and memory agree; mutex guards the shared state below.
	tickMu       sync.Mutex
	setpointMu   sync.Mutex
	mutex        sync.RWMutex
	temperatureC float64
	setpointF    float64
	status       model.Status
	output       model.ControlOutput
	lastTick     time.Time
	ticks        int
}

// NewService expects table to have passed Validate. dbConn may be nil.
func NewService(dbConn *sql.DB, cfg config.Config, table calibration.Table, deps Deps) *Service {
	policy, err := thermistor.ParsePolicy(cfg.ConversionPolicy)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to interpolated conversion")
		policy = thermistor.Interpolated
	}

	outputMax := controller.DefaultOutputMax
	if cfg.OutputMax != nil {
		outputMax = *cfg.OutputMax
	}

	s := &Service{
		dbConn:         dbConn,
		converter:      thermistor.New(table, cfg.SeriesResistorOhms, cfg.ReferenceVoltage, policy),
		controller:     controller.New(cfg.PConstant, cfg.OutputMin, outputMax),
		interval:       time.Duration(cfg.PollIntervalMillis) * time.Millisecond,
		sampleTimeout:  time.Duration(cfg.ADC.TimeoutMillis) * time.Millisecond,
		controlEnabled: cfg.ControlEnabled,
		historyLimit:   cfg.HistoryLimit,
		setpointMinF:   cfg.SetpointMinF,
		setpointMaxF:   cfg.SetpointMaxF,
		sampler:        deps.Sampler,
		actuator:       deps.Actuator,
		notifier:       deps.Notifier,
		metrics:        deps.Metrics,
		temperatureC:   table.LowerLimitC,
		setpointF:      cfg.DefaultSetpointF,
	}
	if s.sampleTimeout <= 0 {
		s.sampleTimeout = time.Second
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

// LoadSetpoint replaces the configured default with the persisted setpoint, if
// any. A stored value that is not finite or falls outside the configured bounds
// is ignored and the default stays in effect.
func (s *Service) LoadSetpoint() error {
	if s.dbConn == nil {
		return nil
	}

	s.setpointMu.Lock()
	defer s.setpointMu.Unlock()

	value, ok, err := db.GetSetpoint(s.dbConn)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if !s.restorable(value) {
		log.Warn().
			Float64("stored", value).
			Float64("setpoint_f", s.Setpoint()).
			Msg("Ignoring persisted setpoint, using default")
		return nil
	}

	s.mutex.Lock()
	s.setpointF = value
	s.mutex.Unlock()

	log.Info().Float64("setpoint_f", value).Msg("Restored persisted setpoint")
	return nil
}

func (s *Service) restorable(value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	if s.setpointMinF < s.setpointMaxF {
		return value >= s.setpointMinF && value <= s.setpointMaxF
	}
	return true
}

// Start runs the loop in a goroutine. The returned channel closes once the
// loop has stopped and no tick is in flight.
func (s *Service) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().
			Dur("interval", s.interval).
			Bool("control_enabled", s.controlEnabled).
			Str("policy", string(s.converter.Policy())).
			Msg("Starting thermistor sampling loop")
		s.Run(ctx)
		log.Info().Msg("Thermistor sampling loop stopped")
	}()
	return done
}

// Run polls until ctx is cancelled. Ticks are re-armed from the elapsed time
// since the last tick, so a slow tick delays the next one instead of queueing.
func (s *Service) Run(ctx context.Context) {
	resolution := s.interval / 10
	if resolution < 10*time.Millisecond {
		resolution = 10 * time.Millisecond
	}
	if resolution > 100*time.Millisecond {
		resolution = 100 * time.Millisecond
	}

	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	s.Poll(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Poll(ctx, now)
		}
	}
}

// Poll runs a tick if at least one interval has passed since the previous one.
// It reports whether a tick ran.
func (s *Service) Poll(ctx context.Context, now time.Time) bool {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mutex.RLock()
	last := s.lastTick
	s.mutex.RUnlock()

	if !last.IsZero() && now.Sub(last) < s.interval {
		return false
	}
	s.tick(ctx, now)
	return true
}

func (s *Service) tick(ctx context.Context, now time.Time) {
	res, reading := s.read(ctx)
	measuredF := res.Fahrenheit()

	s.mutex.Lock()
	prevStatus := s.status
	s.temperatureC = res.Celsius
	s.status = res.Status
	setpoint := s.setpointF

	var out model.ControlOutput
	if s.controlEnabled {
		if res.Status == model.StatusSensorFault {
			out = s.controller.Idle()
		} else {
			out = s.controller.Compute(setpoint, measuredF)
		}
		s.output = out
	}
	s.lastTick = now
	s.ticks++
	ticks := s.ticks
	s.mutex.Unlock()

	event := log.Debug()
	if err := res.Err(); err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Float64("temp_f", measuredF).
		Float64("ohms", res.Ohms).
		Float64("volts", res.Volts).
		Str("status", string(res.Status)).
		Float64("setpoint_f", setpoint).
		Msg("Thermistor reading")

	if s.controlEnabled {
		s.drive(out)
	}

	s.record(reading, res, out, ticks)
	s.emitMetrics(res, measuredF, setpoint, out)
	s.checkTransition(prevStatus, res)
}

func (s *Service) read(ctx context.Context) (thermistor.Result, model.Reading) {
	sctx, cancel := context.WithTimeout(ctx, s.sampleTimeout)
	defer cancel()

	reading, err := s.sampler.Sample(sctx)
	if err != nil {
		log.Error().Err(err).Msg("ADC sample failed")
		return thermistor.Result{
			Celsius: s.converter.Table().LowerLimitC,
			Volts:   math.NaN(),
			Status:  model.StatusSensorFault,
		}, model.Reading{TakenAt: time.Now()}
	}
	return s.converter.ConvertReading(reading), reading
}

func (s *Service) drive(out model.ControlOutput) {
	if out.Clamped {
		log.Debug().
			Float64("requested", out.Raw).
			Float64("applied", out.Level).
			Msg("Actuator clamp applied")
		s.metrics.Incr("actuator.clamped")
	}

	if err := s.actuator.Drive(out); err != nil {
		log.Error().
			Err(err).
			Str("direction", string(out.Direction)).
			Float64("level", out.Level).
			Msg("Failed to drive actuator")
		s.metrics.Incr("actuator.error")
	}
}

func (s *Service) record(reading model.Reading, res thermistor.Result, out model.ControlOutput, ticks int) {
	if s.dbConn == nil {
		return
	}

	volts := res.Volts
	if math.IsNaN(volts) {
		volts = 0
	}
	rec := model.ReadingRecord{
		TakenAt:      reading.TakenAt,
		Raw:          reading.Raw,
		Volts:        volts,
		Ohms:         res.Ohms,
		TemperatureC: res.Celsius,
		Status:       res.Status,
	}
	if s.controlEnabled {
		rec.Direction = out.Direction
		rec.Output = out.Level
		rec.Clamped = out.Clamped
	}

	if err := db.InsertReading(s.dbConn, rec); err != nil {
		log.Error().Err(err).Msg("Failed to record reading")
		return
	}

	if s.historyLimit > 0 && ticks%pruneEvery == 0 {
		removed, err := db.PruneReadings(s.dbConn, s.historyLimit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune reading history")
			return
		}
		log.Debug().Int64("removed", removed).Msg("Pruned reading history")
	}
}

func (s *Service) emitMetrics(res thermistor.Result, measuredF, setpoint float64, out model.ControlOutput) {
	statusTag := "status:" + string(res.Status)
	s.metrics.Gauge("temperature_f", measuredF, statusTag)
	s.metrics.Gauge("setpoint_f", setpoint)
	if res.Status != model.StatusSensorFault {
		s.metrics.Gauge("resistance_ohms", res.Ohms)
	} else {
		s.metrics.Incr("sensor_fault")
	}
	if res.Status == model.StatusOutOfRangeLow || res.Status == model.StatusOutOfRangeHigh {
		s.metrics.Incr("out_of_range", statusTag)
	}
	if s.controlEnabled {
		s.metrics.Gauge("output_level", out.Level, "direction:"+string(out.Direction))
	}
}

// checkTransition alerts when the sensor starts or stops faulting.
func (s *Service) checkTransition(prev model.Status, res thermistor.Result) {
	if s.notifier == nil || prev == res.Status {
		return
	}

	var title, message string
	switch {
	case res.Status == model.StatusSensorFault:
		title = "Thermistor Sensor Fault"
		message = fmt.Sprintf("[Sensor Fault] reading %.3fV, actuator idled, reporting %.1f°F", res.Volts, res.Fahrenheit())
	case prev == model.StatusSensorFault:
		title = "Thermistor Sensor Recovery"
		message = fmt.Sprintf("[Sensor Recovered] %.1f°F (%s)", res.Fahrenheit(), res.Status)
	default:
		return
	}

	// keep the tick bounded; ntfy can take seconds
	go func() {
		if err := s.notifier.Send(title, message); err != nil {
			log.Error().Err(err).Msg("Failed to send sensor notification")
		}
	}()
}

// CurrentTemperature returns the last computed temperature in °F; it may be a
// saturated value, see Snapshot().Status.
func (s *Service) CurrentTemperature() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return units.CelsiusToFahrenheit(s.temperatureC)
}

func (s *Service) Setpoint() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.setpointF
}

// SetSetpoint accepts any finite value in °F. Range policy belongs to the caller.
func (s *Service) SetSetpoint(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSetpoint, value)
	}

	s.setpointMu.Lock()
	defer s.setpointMu.Unlock()

	if s.dbConn != nil {
		if err := db.UpdateSetpoint(s.dbConn, value); err != nil {
			return fmt.Errorf("failed to persist setpoint: %w", err)
		}
	}

	s.mutex.Lock()
	s.setpointF = value
	s.mutex.Unlock()

	log.Info().Float64("setpoint_f", value).Msg("Setpoint updated")
	return nil
}

func (s *Service) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return Snapshot{
		TemperatureC:   s.temperatureC,
		TemperatureF:   units.CelsiusToFahrenheit(s.temperatureC),
		SetpointF:      s.setpointF,
		Status:         s.status,
		ControlEnabled: s.controlEnabled,
		Output:         s.output,
		UpdatedAt:      s.lastTick,
	}
}

type noopMetrics struct{}

func (noopMetrics) Gauge(string, float64, ...string) {}
func (noopMetrics) Incr(string, ...string)           {}
