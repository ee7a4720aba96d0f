package ipcam

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Application Main engine. Holds everything loaded once at startup.
type Application struct {
	settings *AppSettings
	classes  ClassList
	colors   ColorTable
	detector Detector
	closer   func() error
	metrics  *Metrics
	open     OpenSourceFunc
	log      *log.Entry
}

// NewApp loads the class list, then the model. A missing class list fails
// before the model or any camera is touched.
func NewApp(settings *AppSettings, logger *log.Entry) (*Application, error) {
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	logger = moduleLogger(logger, "app")

	classesPath := ResolveResourcePath(settings.NeuralNetworkSettings.Classes)
	classes, err := LoadClassList(classesPath)
	if err != nil {
		return nil, err
	}
	logger.WithField("classes", len(classes)).Debugf("Loaded class list %s", classesPath)

	netDetector, err := NewNetDetector(settings.NeuralNetworkSettings, classes)
	if err != nil {
		return nil, err
	}
	logger.WithField("layout", settings.NeuralNetworkSettings.Layout).Debug("Loaded detection model")

	return newApplication(settings, classes, NewSharedDetector(netDetector), netDetector.Close, SourceOpener(settings.CameraSettings), logger), nil
}

func newApplication(settings *AppSettings, classes ClassList, detector Detector, closer func() error, open OpenSourceFunc, logger *log.Entry) *Application {
	return &Application{
		settings: settings,
		classes:  classes,
		colors:   NewColorTable(len(classes), settings.ColorSeed),
		detector: detector,
		closer:   closer,
		metrics:  NewMetrics(),
		open:     open,
		log:      logger,
	}
}

// Run blocks in the configured mode until ctx is cancelled or the stream ends
func (app *Application) Run(ctx context.Context) error {
	switch app.settings.Mode {
	case ModeDisplay:
		return app.runDisplay(ctx)
	case ModeMJPEG:
		return app.runMJPEG(ctx)
	default:
		return app.runSocket(ctx)
	}
}

func (app *Application) runSocket(ctx context.Context) error {
	ss := app.settings.StreamSettings
	app.log.Infof("Using camera at IP: %s", app.settings.CameraSettings.Address)

	server := NewServer(ServerConfig{
		Settings:  ss,
		Open:      app.open,
		Detector:  app.detector,
		Annotator: app.annotator(ss.AnnotationStyle),
		Encoder:   NewJPEGEncoder(ss.JPEGQuality),
		Metrics:   app.metrics,
		Log:       app.log,
	})
	return server.ListenAndServe(ctx)
}

func (app *Application) runDisplay(ctx context.Context) error {
	ds := app.settings.DisplaySettings
	app.log.Info("Press 'q' or 'ESC' to stop")

	relay := &Relay{
		Open:      app.open,
		Detector:  app.detector,
		Annotator: app.annotator(ds.AnnotationStyle),
		Sink:      NewDisplaySink(ds),
		Width:     ds.Width,
		Height:    ds.Height,
		Metrics:   app.metrics,
		Log:       app.log,
	}
	return app.finish(relay.Run(ctx))
}

func (app *Application) runMJPEG(ctx context.Context) error {
	ms := app.settings.MjpegSettings
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := StartMJPEGStream(ctx, ms.Addr(), app.metrics, app.log)
	if err != nil {
		return err
	}
	relay := &Relay{
		Open:      app.open,
		Detector:  app.detector,
		Annotator: app.annotator(ms.AnnotationStyle),
		Sink:      &MJPEGSink{Encoder: NewJPEGEncoder(ms.JPEGQuality), Stream: stream},
		Width:     ms.Width,
		Height:    ms.Height,
		Metrics:   app.metrics,
		Log:       app.log,
	}
	return app.finish(relay.Run(ctx))
}

// finish turns clean stream ends into a nil error, keeping a notice in the log
func (app *Application) finish(err error) error {
	if errors.Is(err, ErrEndOfStream) {
		app.log.Info("Can't receive frame (stream end?). Exiting ...")
		return nil
	}
	if IsGracefulStop(err) {
		return nil
	}
	return err
}

func (app *Application) annotator(ss StyleSettings) *Annotator {
	return NewAnnotator(NewAnnotationStyle(ss), app.colors, app.classes)
}

// Close Free memory for underlying objects
func (app *Application) Close() error {
	if app.closer == nil {
		return nil
	}
	return app.closer()
}
