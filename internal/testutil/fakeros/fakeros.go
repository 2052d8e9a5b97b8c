// Package fakeros is an in-memory RouterOS API peer for tests. It keeps
// scripts and schedulers, answers the clock, and fires one-shot schedules by
// interpreting the on-event and combine procedures this client generates.
package fakeros

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/rosctl/internal/protocol"
)

// Options tunes device behavior per test.
type Options struct {
	Username string
	Password string
	// ClockTime is returned by /system/clock/print; empty means wall time.
	ClockTime string
	// OmitClock drops the time attribute from the clock reply.
	OmitClock bool
	// RemoveLag delays removals until that many further logins happened.
	RemoveLag int
	// DisableScheduler keeps schedules from ever firing.
	DisableScheduler bool
	// FireAfterLogins fires a one-shot schedule on that many fresh logins
	// after it was added; zero means the next login.
	FireAfterLogins int
	// KeepParts ignores part removals inside combine procedures.
	KeepParts bool
	// TrapAdd makes add trap for these names.
	TrapAdd map[string]string
	// FatalOn answers these commands with !fatal and drops the connection.
	FatalOn map[string]string
	// OddTagOn prefixes the reply to these commands with a sentence whose
	// tag the client does not know, followed by !done.
	OddTagOn map[string]string
	// TLS wraps the listener when set.
	TLS *tls.Config
}

type object struct {
	id       string
	name     string
	attrs    map[string]string
	goneAt   int
	removing bool
}

type Server struct {
	ln   net.Listener
	opts Options

	mu         sync.Mutex
	scripts    map[string]*object
	schedulers map[string]*object
	nextID     int
	logins     int
	commands   []string
	fired      []string
	pending    map[string]int
	conns      map[net.Conn]struct{}
	wg         sync.WaitGroup
	closed     bool
}

func Start(t testing.TB, opts Options) *Server {
	t.Helper()
	if opts.Username == "" {
		opts.Username = "admin"
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakeros listen: %v", err)
	}
	if opts.TLS != nil {
		ln = tls.NewListener(ln, opts.TLS)
	}
	s := &Server{
		ln:         ln,
		opts:       opts,
		scripts:    make(map[string]*object),
		schedulers: make(map[string]*object),
		conns:      make(map[net.Conn]struct{}),
		pending:    make(map[string]int),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) HostPort() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	_ = s.ln.Close()
	s.wg.Wait()
}

// AddScript seeds a script as if it already existed on the device.
func (s *Server) AddScript(name, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(s.scripts, name, map[string]string{"source": source})
}

// AddScheduler seeds a scheduler.
func (s *Server) AddScheduler(name, onEvent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(s.schedulers, name, map[string]string{"on-event": onEvent, "disabled": "false", "next-run": "jan/01/2030 00:00:00"})
}

// Script returns the visible source of name.
func (s *Server) Script(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.visibleLocked(s.scripts, name)
	if obj == nil {
		return "", false
	}
	return obj.attrs["source"], true
}

func (s *Server) HasScheduler(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked(s.schedulers, name) != nil
}

// SchedulerAttrs returns the attributes of a visible scheduler.
func (s *Server) SchedulerAttrs(name string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.visibleLocked(s.schedulers, name)
	if obj == nil {
		return nil, false
	}
	out := make(map[string]string, len(obj.attrs))
	for k, v := range obj.attrs {
		out[k] = v
	}
	return out, true
}

// ScriptNames lists visible scripts, sorted.
func (s *Server) ScriptNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked(s.scripts)
}

func (s *Server) SchedulerNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked(s.schedulers)
}

// Commands returns every command word received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Fired lists schedules that ran.
func (s *Server) Fired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fired...)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()
	reader := bufio.NewReader(conn)
	authed := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		words, err := protocol.ReadSentence(reader)
		if err != nil {
			return
		}
		if len(words) == 0 {
			continue
		}
		s.mu.Lock()
		closed := s.closed
		s.commands = append(s.commands, words[0])
		s.mu.Unlock()
		if closed {
			_ = writeAll(conn, [][]string{{protocol.TagFatal, "server shutting down"}})
			return
		}

		if msg, ok := s.opts.FatalOn[words[0]]; ok {
			_ = writeAll(conn, [][]string{{protocol.TagFatal, msg}})
			return
		}

		if tag, ok := s.opts.OddTagOn[words[0]]; ok {
			if err := writeAll(conn, [][]string{{tag}, {protocol.TagDone}}); err != nil {
				return
			}
			continue
		}

		attrs := protocol.ParseAttrs(words[1:])
		queries := parseQueries(words[1:])
		var replies [][]string
		switch {
		case words[0] == "/login":
			replies, authed = s.login(attrs, authed)
		case !authed:
			replies = trap("not logged in")
		default:
			replies = s.dispatch(words[0], attrs, queries)
		}
		if err := writeAll(conn, replies); err != nil {
			return
		}
	}
}

func (s *Server) login(attrs protocol.Attrs, authed bool) ([][]string, bool) {
	name, hasName := attrs["name"]
	if !hasName {
		return [][]string{{protocol.TagDone}}, authed
	}
	if name != s.opts.Username || attrs["password"] != s.opts.Password {
		return trap("invalid user name or password (6)"), false
	}
	s.mu.Lock()
	s.logins++
	s.firePendingLocked()
	s.mu.Unlock()
	return [][]string{{protocol.TagDone}}, true
}

func (s *Server) dispatch(cmd string, attrs protocol.Attrs, queries map[string]string) [][]string {
	switch cmd {
	case "/system/clock/print":
		return s.clock()
	case "/system/script/print":
		return s.print(s.scripts, attrs, queries)
	case "/system/scheduler/print":
		return s.print(s.schedulers, attrs, queries)
	case "/system/script/add":
		return s.add(s.scripts, attrs, false)
	case "/system/scheduler/add":
		replies := s.add(s.schedulers, attrs, true)
		if replies[0][0] == protocol.TagDone && !s.opts.DisableScheduler {
			s.schedule(attrs["name"])
		}
		return replies
	case "/system/script/remove":
		return s.remove(s.scripts, attrs)
	case "/system/scheduler/remove":
		return s.remove(s.schedulers, attrs)
	default:
		return trap("no such command")
	}
}

func (s *Server) clock() [][]string {
	if s.opts.OmitClock {
		return [][]string{{protocol.TagRow, protocol.Attr("date", "jan/01/2030")}, {protocol.TagDone}}
	}
	now := s.opts.ClockTime
	if now == "" {
		now = time.Now().Format("15:04:05")
	}
	return [][]string{
		{protocol.TagRow, protocol.Attr("time", now), protocol.Attr("date", "jan/01/2030"), protocol.Attr("time-zone-name", "UTC")},
		{protocol.TagDone},
	}
}

func (s *Server) print(coll map[string]*object, attrs protocol.Attrs, queries map[string]string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var props map[string]bool
	if raw, ok := attrs[".proplist"]; ok {
		props = make(map[string]bool)
		for _, p := range strings.Split(raw, ",") {
			props[p] = true
		}
	}
	names := s.namesLocked(coll)
	replies := make([][]string, 0, len(names)+1)
	for _, name := range names {
		if want, ok := queries["name"]; ok && want != name {
			continue
		}
		obj := coll[name]
		row := []string{protocol.TagRow}
		if props == nil || props[".id"] {
			row = append(row, protocol.Attr(".id", obj.id))
		}
		if props == nil || props["name"] {
			row = append(row, protocol.Attr("name", obj.name))
		}
		keys := make([]string, 0, len(obj.attrs))
		for k := range obj.attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if props == nil || props[k] {
				row = append(row, protocol.Attr(k, obj.attrs[k]))
			}
		}
		replies = append(replies, row)
	}
	return append(replies, []string{protocol.TagDone})
}

func (s *Server) add(coll map[string]*object, attrs protocol.Attrs, scheduler bool) [][]string {
	name := attrs["name"]
	if msg, ok := s.opts.TrapAdd[name]; ok {
		return trap(msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		return trap("name must be set")
	}
	if s.visibleLocked(coll, name) != nil {
		return trap("failure: item with such name already exists")
	}
	rest := make(map[string]string)
	for k, v := range attrs {
		if k != "name" {
			rest[k] = v
		}
	}
	if scheduler {
		rest["disabled"] = "false"
		rest["next-run"] = rest["start-time"]
	}
	obj := s.addLocked(coll, name, rest)
	return [][]string{{protocol.TagDone, protocol.Attr("ret", obj.id)}}
}

func (s *Server) remove(coll map[string]*object, attrs protocol.Attrs) [][]string {
	id := attrs[".id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range coll {
		if obj.id == id && s.isVisibleLocked(obj) {
			s.removeLocked(coll, obj, s.opts.RemoveLag)
			return [][]string{{protocol.TagDone}}
		}
	}
	return trap("no such item")
}

func (s *Server) addLocked(coll map[string]*object, name string, attrs map[string]string) *object {
	s.nextID++
	obj := &object{id: "*" + strconv.FormatInt(int64(s.nextID), 16), name: name, attrs: attrs}
	coll[name] = obj
	return obj
}

func (s *Server) removeLocked(coll map[string]*object, obj *object, lag int) {
	if lag <= 0 {
		delete(coll, obj.name)
		return
	}
	obj.removing = true
	obj.goneAt = s.logins + lag
}

func (s *Server) isVisibleLocked(obj *object) bool {
	return !obj.removing || s.logins < obj.goneAt
}

func (s *Server) visibleLocked(coll map[string]*object, name string) *object {
	obj, ok := coll[name]
	if !ok {
		return nil
	}
	if !s.isVisibleLocked(obj) {
		delete(coll, name)
		return nil
	}
	return obj
}

func (s *Server) namesLocked(coll map[string]*object) []string {
	names := make([]string, 0, len(coll))
	for name := range coll {
		if s.visibleLocked(coll, name) != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Server) schedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	after := s.opts.FireAfterLogins
	if after <= 0 {
		after = 1
	}
	s.pending[name] = s.logins + after
}

func (s *Server) firePendingLocked() {
	names := make([]string, 0, len(s.pending))
	for name, at := range s.pending {
		if s.logins >= at {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		delete(s.pending, name)
		s.fireLocked(name)
	}
}

func (s *Server) fireLocked(name string) {
	obj := s.visibleLocked(s.schedulers, name)
	if obj == nil {
		return
	}
	s.fired = append(s.fired, name)
	for _, stmt := range strings.Split(obj.attrs["on-event"], ";") {
		s.execLocked(strings.TrimSpace(stmt))
	}
}

var (
	reRun        = regexp.MustCompile(`^/system script run "?([^"]+?)"?$`)
	reRemoveName = regexp.MustCompile(`^/system (script|scheduler) remove "?([^"\[\]]+?)"?$`)
	reRemoveFind = regexp.MustCompile(`^/system (script|scheduler) remove \[find name="?([^"\]]+?)"?\]$`)
	reGetSource  = regexp.MustCompile(`\[/system script get "?([^"\]]+?)"? source\]`)
	reAddFinal   = regexp.MustCompile(`^/system script add name="([^"]+)" source=\$(\w+)`)
	reLocalSet   = regexp.MustCompile(`^:(?:local|set) (\w+) \(\$(\w+) \. \$(\w+)\)$`)
)

func (s *Server) execLocked(stmt string) {
	if m := reRun.FindStringSubmatch(stmt); m != nil {
		if obj := s.visibleLocked(s.scripts, m[1]); obj != nil {
			s.runLocked(obj.attrs["source"])
		}
		return
	}
	s.removeByStatementLocked(stmt)
}

func (s *Server) removeByStatementLocked(stmt string) bool {
	m := reRemoveName.FindStringSubmatch(stmt)
	if m == nil {
		m = reRemoveFind.FindStringSubmatch(stmt)
	}
	if m == nil {
		return false
	}
	coll := s.scripts
	if m[1] == "scheduler" {
		coll = s.schedulers
	}
	if obj := s.visibleLocked(coll, m[2]); obj != nil {
		s.removeLocked(coll, obj, 0)
	}
	return true
}

// runLocked interprets the subset of the scripting language that combine
// procedures use: variable concatenation, source reads, add and remove.
func (s *Server) runLocked(source string) {
	vars := make(map[string]string)
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ":log") {
			continue
		}
		if m := reGetSource.FindStringSubmatch(line); m != nil {
			target := strings.Fields(strings.TrimPrefix(strings.TrimPrefix(line, ":set "), ":local "))
			if obj := s.visibleLocked(s.scripts, m[1]); obj != nil && len(target) > 0 {
				vars[target[0]] = obj.attrs["source"]
			}
			continue
		}
		if m := reLocalSet.FindStringSubmatch(line); m != nil {
			vars[m[1]] = vars[m[2]] + vars[m[3]]
			continue
		}
		if m := reAddFinal.FindStringSubmatch(line); m != nil {
			if s.visibleLocked(s.scripts, m[1]) == nil {
				policy := ""
				if idx := strings.Index(line, "policy="); idx >= 0 {
					policy = strings.TrimSpace(line[idx+len("policy="):])
				}
				s.addLocked(s.scripts, m[1], map[string]string{"source": vars[m[2]], "policy": policy})
			}
			continue
		}
		if strings.HasPrefix(line, "/system script remove") && s.opts.KeepParts {
			continue
		}
		s.removeByStatementLocked(line)
	}
}

func parseQueries(words []string) map[string]string {
	out := make(map[string]string)
	for _, w := range words {
		if !strings.HasPrefix(w, "?") {
			continue
		}
		k, v, ok := strings.Cut(w[1:], "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

func trap(msg string) [][]string {
	return [][]string{{protocol.TagTrap, protocol.Attr("message", msg)}, {protocol.TagDone}}
}

func writeAll(conn net.Conn, replies [][]string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	var buf bytes.Buffer
	for _, r := range replies {
		for _, w := range r {
			buf.Write(deviceLength(len(w)))
			buf.WriteString(w)
		}
		buf.WriteByte(0)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("fakeros write: %w", err)
	}
	return nil
}

// deviceLength frames like a device does, using the three- to five-byte
// forms for long words such as big script sources.
func deviceLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n < 0x4000:
		return []byte{byte(n>>8) | 0x80, byte(n)}
	case n < 0x200000:
		return []byte{byte(n>>16) | 0xC0, byte(n >> 8), byte(n)}
	case n < 0x10000000:
		return []byte{byte(n>>24) | 0xE0, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		return []byte{0xF0, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}
