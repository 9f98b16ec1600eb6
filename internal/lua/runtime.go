package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/ftry/internal/logging"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

var log = logging.NewLogger("lua")

// Message is the view of a chat message handed to scripts.
type Message struct {
	Role    string
	Name    string
	Content string
}

// Script is a compiled model script. Each call runs in a fresh sandboxed
// state, so scripts cannot carry state between completions.
type Script struct {
	path  string
	model string
	proto *lua.FunctionProto
}

// Load reads and compiles the script at path.
func Load(path, model string) (*Script, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	chunk, err := parse.Parse(strings.NewReader(string(source)), filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script %s: %w", path, err)
	}

	return &Script{path: path, model: model, proto: proto}, nil
}

// Complete calls the script's complete(messages) function and returns the
// string it produces.
func (s *Script) Complete(ctx context.Context, messages []Message) (string, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	defer L.Close()
	L.SetContext(ctx)

	s.openSafeLibs(L)
	s.registerAPI(L)

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return "", fmt.Errorf("failed to load script: %w", err)
	}

	complete := L.GetGlobal("complete")
	if complete.Type() != lua.LTFunction {
		return "", fmt.Errorf("script %s must define a 'complete' function", s.path)
	}

	L.Push(complete)
	L.Push(messagesToTable(L, messages))
	if err := L.PCall(1, 1, nil); err != nil {
		return "", fmt.Errorf("script execution failed: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	str, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("complete() must return a string, got %s", ret.Type())
	}
	return string(str), nil
}

// openSafeLibs loads only the safe standard libraries
func (s *Script) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Completions must be reproducible
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (s *Script) registerAPI(L *lua.LState) {
	L.SetGlobal("log", L.NewFunction(s.luaLog))
	L.SetGlobal("model", lua.LString(s.model))
}

// luaLog implements the log(message) API
func (s *Script) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	log.WithField("script", s.path).Debug(message)
	return 0
}

func messagesToTable(L *lua.LState, messages []Message) *lua.LTable {
	tbl := L.NewTable()
	for i, m := range messages {
		entry := L.NewTable()
		L.SetField(entry, "role", lua.LString(m.Role))
		L.SetField(entry, "name", lua.LString(m.Name))
		L.SetField(entry, "content", lua.LString(m.Content))
		L.SetTable(tbl, lua.LNumber(i+1), entry)
	}
	return tbl
}

// IsScript reports whether path looks like a Lua script.
func IsScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}
