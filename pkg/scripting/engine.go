// Package scripting provides a sandboxed Lua engine for policy hooks.
// Hooks extend guardrail checks and memory-write decisions without a rebuild;
// a missing or failing hook never breaks the calling pipeline.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ErrFunctionNotFound is returned when the requested Lua function has not
// been loaded into the engine.
var ErrFunctionNotFound = errors.New("lua function not found")

// IsFunctionNotFound reports whether err indicates a missing hook function.
func IsFunctionNotFound(err error) bool {
	return errors.Is(err, ErrFunctionNotFound)
}

// Engine is the interface for the Lua scripting engine.
type Engine interface {
	// LoadScript loads a Lua script with the given name and content.
	LoadScript(name string, content []byte) error

	// LoadScriptFile loads a Lua script from a file path.
	LoadScriptFile(path string) error

	// LoadScriptDir loads all Lua scripts from a directory.
	LoadScriptDir(dir string) error

	// ExecuteFunction calls a Lua function with the given arguments.
	// The function should be previously loaded via LoadScript or LoadScriptFile.
	ExecuteFunction(ctx context.Context, funcName string, args ...interface{}) (interface{}, error)

	// Close releases resources associated with the engine.
	Close() error
}

// Config contains configuration options for the scripting engine.
type Config struct {
	// EnableSandboxing restricts access to potentially dangerous Lua modules like os and io
	EnableSandboxing bool

	// ScriptTimeoutMs sets a maximum execution time for scripts in milliseconds
	ScriptTimeoutMs int
}

// DefaultConfig returns the default configuration for the scripting engine.
func DefaultConfig() Config {
	return Config{
		EnableSandboxing: true,
		ScriptTimeoutMs:  1000, // 1 second
	}
}

// LuaEngine is the gopher-lua backed implementation of Engine.
// An LState is not safe for concurrent use, so all calls serialize on a mutex.
type LuaEngine struct {
	state  *lua.LState
	config Config
	mutex  sync.Mutex
}

// NewLuaEngine creates a new LuaEngine with the given configuration.
func NewLuaEngine(config Config) (*LuaEngine, error) {
	state := lua.NewState()

	if config.EnableSandboxing {
		setupSandbox(state)
	}

	registerAPIFunctions(state)

	return &LuaEngine{
		state:  state,
		config: config,
	}, nil
}

// LoadScript implements the Engine interface.
func (e *LuaEngine) LoadScript(name string, content []byte) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := e.state.DoString(string(content)); err != nil {
		return fmt.Errorf("failed to load script %q: %w", name, err)
	}
	return nil
}

// LoadScriptFile implements the Engine interface.
func (e *LuaEngine) LoadScriptFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script file: %w", err)
	}
	return e.LoadScript(filepath.Base(path), content)
}

// LoadScriptDir implements the Engine interface. Only files with a .lua
// extension are loaded.
func (e *LuaEngine) LoadScriptDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read script directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		if err := e.LoadScriptFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteFunction implements the Engine interface.
func (e *LuaEngine) ExecuteFunction(ctx context.Context, funcName string, args ...interface{}) (interface{}, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	fn := e.state.GetGlobal(funcName)
	if fn == lua.LNil || fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, funcName)
	}

	// Bound execution time via the state's context
	if e.config.ScriptTimeoutMs > 0 {
		timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(e.config.ScriptTimeoutMs)*time.Millisecond)
		defer cancel()
		e.state.SetContext(timeoutCtx)
		defer e.state.RemoveContext()
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = convertGoToLua(e.state, arg)
	}

	err := e.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, luaArgs...)
	if err != nil {
		return nil, fmt.Errorf("lua function %q failed: %w", funcName, err)
	}

	result := e.state.Get(-1)
	e.state.Pop(1)

	return convertLuaToGo(result), nil
}

// Close implements the Engine interface.
func (e *LuaEngine) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.state.Close()
	return nil
}

// convertGoToLua converts a Go value to its Lua representation.
func convertGoToLua(L *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []interface{}:
		table := L.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, convertGoToLua(L, item))
		}
		return table
	case []string:
		table := L.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, lua.LString(item))
		}
		return table
	case []map[string]interface{}:
		table := L.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, convertGoToLua(L, item))
		}
		return table
	case map[string]interface{}:
		table := L.NewTable()
		for key, item := range v {
			table.RawSetString(key, convertGoToLua(L, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// convertLuaToGo converts a Lua value to its Go representation. Tables with
// contiguous integer keys become slices; all other tables become maps.
func convertLuaToGo(value lua.LValue) interface{} {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		length := v.Len()
		if length > 0 {
			slice := make([]interface{}, 0, length)
			for i := 1; i <= length; i++ {
				slice = append(slice, convertLuaToGo(v.RawGetInt(i)))
			}
			return slice
		}

		result := make(map[string]interface{})
		v.ForEach(func(key, val lua.LValue) {
			result[key.String()] = convertLuaToGo(val)
		})
		return result
	default:
		return v.String()
	}
}
