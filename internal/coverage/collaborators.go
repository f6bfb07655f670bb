package coverage

import (
	"io"
	"time"

	"github.com/psantana5/covrun/internal/framework"
	"github.com/psantana5/covrun/internal/symbols"
)

// SymbolResolver builds the symbol map of a module.
type SymbolResolver interface {
	Resolve(modulePath, symbolPath string) (*symbols.SymbolMap, error)
}

// Instrumenter rewrites module bytes. It may mark dependencies in the map
// as Required.
type Instrumenter interface {
	Instrument(module []byte, m *symbols.SymbolMap) ([]byte, error)
}

// Logger receives progress lines and every diagnostic.
type Logger interface {
	Debug(message string, fields ...map[string]interface{})
	Info(message string, fields ...map[string]interface{})
	Warn(message string, fields ...map[string]interface{})
	Error(message string, fields ...map[string]interface{})
}

// FileSystem is the file access the orchestrator needs.
type FileSystem interface {
	Exists(path string) bool
	OpenRead(path string) (io.ReadCloser, error)
	Write(path string, data []byte) error
}

// DirMaker is implemented by file systems that can create directories.
// Backups need it.
type DirMaker interface {
	MkdirAll(path string) error
}

// DependencyResolver looks up one library.
type DependencyResolver interface {
	TryResolve(req framework.Request) (framework.Result, error)
}

// DependencyResolverFactory creates a resolver for a module.
type DependencyResolverFactory func(modulePath string) (DependencyResolver, error)

// Metrics records run statistics.
type Metrics interface {
	ObserveRetry(op string)
	ObserveRun(success bool, unresolved int, duration time.Duration)
}

// Dependencies are the collaborators of an Orchestrator. FileSystem,
// Symbols and Instrumenter are required.
type Dependencies struct {
	FileSystem   FileSystem
	Symbols      SymbolResolver
	Instrumenter Instrumenter
	Logger       Logger
	// Resolvers is optional; without it dependencies are not looked up.
	Resolvers DependencyResolverFactory
	Metrics   Metrics
}

// FrameworkResolvers adapts framework.NewResolver into a factory.
func FrameworkResolvers(opts ...framework.Option) DependencyResolverFactory {
	return func(modulePath string) (DependencyResolver, error) {
		return framework.NewResolver(modulePath, opts...)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...map[string]interface{}) {}
func (nopLogger) Info(string, ...map[string]interface{})  {}
func (nopLogger) Warn(string, ...map[string]interface{})  {}
func (nopLogger) Error(string, ...map[string]interface{}) {}
