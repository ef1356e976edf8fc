package rules

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fabianaguero/truco/internal/domain"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/multierr"
)

//go:embed scripts/*.lua
var defaultScripts embed.FS

// DefaultLuaName names the embedded Lua rule set.
const DefaultLuaName = "lua:default"

const defaultEvalTimeout = 250 * time.Millisecond

// LuaRuleSet evaluates predicates registered by Lua scripts. Each script calls
// register(name, function(player, match) ... end) for the permissions it defines.
// Scripts are compiled once and executed on a pool of interpreter states.
type LuaRuleSet struct {
	name    string
	protos  []*lua.FunctionProto
	names   []string
	pool    *statePool
	timeout time.Duration
}

// DefaultLua loads the embedded rule scripts.
func DefaultLua() (*LuaRuleSet, error) {
	sub, err := fs.Sub(defaultScripts, "scripts")
	if err != nil {
		return nil, err
	}
	return LoadLuaFS(DefaultLuaName, sub)
}

// LoadLuaDir loads every *.lua file in dir.
func LoadLuaDir(dir string) (*LuaRuleSet, error) {
	return LoadLuaFS("lua:"+dir, os.DirFS(dir))
}

// LoadLuaFS loads every *.lua file at the root of fsys, in name order.
func LoadLuaFS(name string, fsys fs.FS) (*LuaRuleSet, error) {
	files, err := fs.Glob(fsys, "*.lua")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	scripts := make(map[string]string, len(files))
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read rule script %s: %w", f, err)
		}
		scripts[f] = string(b)
	}
	return NewLuaRuleSet(name, scripts)
}

// NewLuaRuleSet compiles the given scripts, keyed by file name.
func NewLuaRuleSet(name string, scripts map[string]string) (*LuaRuleSet, error) {
	if len(scripts) == 0 {
		return nil, fmt.Errorf("%w: %s has no rule scripts", ErrRulesetUnavailable, name)
	}
	files := make([]string, 0, len(scripts))
	for f := range scripts {
		files = append(files, f)
	}
	sort.Strings(files)

	protos := make([]*lua.FunctionProto, 0, len(files))
	for _, f := range files {
		chunk, err := parse.Parse(strings.NewReader(scripts[f]), f)
		if err != nil {
			return nil, fmt.Errorf("parse rule script %s: %w", f, err)
		}
		proto, err := lua.Compile(chunk, f)
		if err != nil {
			return nil, fmt.Errorf("compile rule script %s: %w", f, err)
		}
		protos = append(protos, proto)
	}

	rs := &LuaRuleSet{name: name, protos: protos, timeout: defaultEvalTimeout}
	rs.pool = &statePool{newVM: rs.newVM}

	// Build one state up front so script errors surface at load time.
	vm, err := rs.newVM()
	if err != nil {
		return nil, err
	}
	for n := range vm.preds {
		rs.names = append(rs.names, n)
	}
	sort.Strings(rs.names)
	rs.pool.put(vm)
	return rs, nil
}

func (r *LuaRuleSet) Name() string { return r.name }

// Permissions lists the permission names the scripts registered.
func (r *LuaRuleSet) Permissions() []string {
	return append([]string(nil), r.names...)
}

// Close releases pooled interpreter states.
func (r *LuaRuleSet) Close() {
	r.pool.shutdown()
}

// Evaluate runs every registered predicate. Predicates that raise an error or
// exceed the evaluation timeout count as false and are reported in the error.
func (r *LuaRuleSet) Evaluate(p *domain.Player, m *domain.Match) (domain.PermissionSet, error) {
	ps := domain.NewPermissionSet()
	ps.EnvidoPoints = domain.EnvidoTotal(p.Hand)
	if len(r.names) == 0 {
		return ps, ErrRulesetUnavailable
	}

	vm, err := r.pool.get()
	if err != nil {
		return ps, fmt.Errorf("%w: %v", ErrRulesetUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	vm.L.SetContext(ctx)

	player := playerTable(vm.L, p, m)
	match := matchTable(vm.L, m)

	var errs error
	for _, name := range r.names {
		ok, err := vm.call(name, player, match)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rule %s: %w", name, err))
			continue
		}
		ps.Set(domain.Permission(name), ok)
	}

	vm.L.RemoveContext()
	if errs != nil {
		// A state that failed mid-call is not reused.
		vm.L.Close()
	} else {
		r.pool.put(vm)
	}
	return ps, errs
}

type luaVM struct {
	L     *lua.LState
	preds map[string]*lua.LFunction
}

func (r *LuaRuleSet) newVM() (*luaVM, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua lib %s: %w", lib.name, err)
		}
	}

	vm := &luaVM{L: L, preds: map[string]*lua.LFunction{}}
	var regErr error
	L.SetGlobal("register", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		fn := L.CheckFunction(2)
		if !domain.Permission(name).Known() {
			regErr = multierr.Append(regErr, fmt.Errorf("unknown permission %q", name))
			return 0
		}
		vm.preds[name] = fn
		return 0
	}))
	L.SetGlobal("envido_total", L.NewFunction(luaEnvidoTotal))

	for _, proto := range r.protos {
		L.Push(L.NewFunctionFromProto(proto))
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			L.Close()
			return nil, fmt.Errorf("run rule script %s: %w", proto.SourceName, err)
		}
	}
	if regErr != nil {
		L.Close()
		return nil, regErr
	}
	return vm, nil
}

func (vm *luaVM) call(name string, args ...lua.LValue) (bool, error) {
	fn, ok := vm.preds[name]
	if !ok {
		return false, nil
	}
	if err := vm.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return false, err
	}
	ret := vm.L.Get(-1)
	vm.L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// luaEnvidoTotal exposes domain.EnvidoTotal to scripts: envido_total(hand).
func luaEnvidoTotal(L *lua.LState) int {
	tbl := L.CheckTable(1)
	var hand []domain.Card
	tbl.ForEach(func(_, v lua.LValue) {
		ct, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		hand = append(hand, domain.Card{
			Suit: domain.Suit(lua.LVAsString(ct.RawGetString("suit"))),
			Face: int(lua.LVAsNumber(ct.RawGetString("face"))),
		})
	})
	L.Push(lua.LNumber(domain.EnvidoTotal(hand)))
	return 1
}

func playerTable(L *lua.LState, p *domain.Player, m *domain.Match) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(p.ID))
	t.RawSetString("name", lua.LString(p.Name))
	t.RawSetString("team", lua.LNumber(m.TeamOf(p.ID)))
	hand := L.NewTable()
	for _, c := range p.Hand {
		ct := L.NewTable()
		ct.RawSetString("suit", lua.LString(c.Suit))
		ct.RawSetString("face", lua.LNumber(c.Face))
		hand.Append(ct)
	}
	t.RawSetString("hand", hand)
	t.RawSetString("hand_size", lua.LNumber(len(p.Hand)))
	t.RawSetString("envido_points", lua.LNumber(domain.EnvidoTotal(p.Hand)))
	t.RawSetString("has_flor", lua.LBool(domain.HasFlor(p.Hand)))
	t.RawSetString("is_turn", lua.LBool(m.Turn.Current() == p.ID))
	return t
}

func matchTable(L *lua.LState, m *domain.Match) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(m.ID))
	t.RawSetString("phase", lua.LString(m.Phase))
	t.RawSetString("finished", lua.LBool(m.Finished()))
	t.RawSetString("hand_number", lua.LNumber(m.HandNumber))
	t.RawSetString("trick_number", lua.LNumber(m.TrickNumber))
	t.RawSetString("score_limit", lua.LNumber(m.ScoreLimit))
	t.RawSetString("hand_value", lua.LNumber(m.HandValue))
	t.RawSetString("current_turn", lua.LString(m.Turn.Current()))
	t.RawSetString("mano", lua.LString(m.Mano))

	for _, f := range domain.Families {
		b := m.Bid(f)
		t.RawSetString(string(f)+"_level", lua.LNumber(b.Level))
		t.RawSetString(string(f)+"_pending", lua.LBool(b.Pending))
	}

	pending := m.PendingFamilies()
	t.RawSetString("pending_count", lua.LNumber(len(pending)))
	if len(pending) == 1 {
		b := m.Bid(pending[0])
		t.RawSetString("pending_family", lua.LString(pending[0]))
		t.RawSetString("pending_caller", lua.LString(b.CalledBy))
	}

	scores := L.NewTable()
	for _, team := range m.Teams {
		scores.Append(lua.LNumber(team.Score))
	}
	t.RawSetString("scores", scores)
	return t
}

// statePool keeps idle interpreter states; an LState is not safe for concurrent use.
type statePool struct {
	mu    sync.Mutex
	saved []*luaVM
	newVM func() (*luaVM, error)
}

func (p *statePool) get() (*luaVM, error) {
	p.mu.Lock()
	n := len(p.saved)
	if n == 0 {
		p.mu.Unlock()
		return p.newVM()
	}
	vm := p.saved[n-1]
	p.saved = p.saved[:n-1]
	p.mu.Unlock()
	return vm, nil
}

func (p *statePool) put(vm *luaVM) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, vm)
}

func (p *statePool) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, vm := range p.saved {
		vm.L.Close()
	}
	p.saved = nil
}

// ScriptNames lists the embedded default scripts.
func ScriptNames() []string {
	files, _ := fs.Glob(defaultScripts, "scripts/*.lua")
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, path.Base(f))
	}
	sort.Strings(out)
	return out
}
