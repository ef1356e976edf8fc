package nakama

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

// recordingLogger keeps formatted lines and the fields they were logged with.
type recordingLogger struct {
	mu     *sync.Mutex
	lines  *[]string
	fields map[string]interface{}
}

func newRecordingLogger() recordingLogger {
	return recordingLogger{mu: &sync.Mutex{}, lines: &[]string{}}
}

func (l recordingLogger) log(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, fmt.Sprintf("%s=%v", k, l.fields[k]))
	}
	sort.Strings(keys)
	*l.lines = append(*l.lines, strings.TrimSpace(level+" "+fmt.Sprintf(format, v...)+" "+strings.Join(keys, " ")))
}

func (l recordingLogger) Debug(f string, v ...interface{}) { l.log("DEBUG", f, v...) }
func (l recordingLogger) Info(f string, v ...interface{})  { l.log("INFO", f, v...) }
func (l recordingLogger) Warn(f string, v ...interface{})  { l.log("WARN", f, v...) }
func (l recordingLogger) Error(f string, v ...interface{}) { l.log("ERROR", f, v...) }
func (l recordingLogger) WithField(k string, v interface{}) runtime.Logger {
	return l.WithFields(map[string]interface{}{k: v})
}
func (l recordingLogger) WithFields(f map[string]interface{}) runtime.Logger {
	merged := map[string]interface{}{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range f {
		merged[k] = v
	}
	return recordingLogger{mu: l.mu, lines: l.lines, fields: merged}
}
func (l recordingLogger) Fields() map[string]interface{} { return l.fields }

// sentMessage is one dispatcher broadcast.
type sentMessage struct {
	opCode     int64
	data       []byte
	recipients []string
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	runtime.MatchDispatcher
	sent   []sentMessage
	labels []string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	msg := sentMessage{opCode: opCode, data: append([]byte(nil), data...)}
	for _, p := range presences {
		msg.recipients = append(msg.recipients, p.GetUserId())
	}
	md.sent = append(md.sent, msg)
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labels = append(md.labels, label)
	return nil
}

func (md *mockDispatcher) byOp(op int64) []sentMessage {
	var out []sentMessage
	for _, m := range md.sent {
		if m.opCode == op {
			out = append(out, m)
		}
	}
	return out
}

type fakePresence struct {
	runtime.Presence
	userID string
}

func (p fakePresence) GetUserId() string    { return p.userID }
func (p fakePresence) GetSessionId() string { return "session-" + p.userID }
func (p fakePresence) GetUsername() string  { return p.userID }

type fakeMatchData struct {
	runtime.MatchData
	userID string
	op     int64
	data   []byte
}

func (d fakeMatchData) GetUserId() string { return d.userID }
func (d fakeMatchData) GetOpCode() int64  { return d.op }
func (d fakeMatchData) GetData() []byte   { return d.data }

type storageKey struct {
	collection, key, userID string
}

type signalCall struct {
	tableID string
	data    string
}

// fakeNK implements the storage, user, group and match calls the adapters use.
type fakeNK struct {
	runtime.NakamaModule

	mu       sync.Mutex
	objects  map[storageKey]*api.StorageObject
	seq      int
	users    map[string]*api.User
	groups   map[string]*api.Group
	members  map[string][]*api.GroupUserList_GroupUser
	tables   map[string]string // truco match id -> table id
	signals  []signalCall
	profiles map[string]string

	// signalGate, when set, holds every MatchSignal until it is closed.
	signalGate chan struct{}
}

func newFakeNK() *fakeNK {
	return &fakeNK{
		objects:  map[storageKey]*api.StorageObject{},
		users:    map[string]*api.User{},
		groups:   map[string]*api.Group{},
		members:  map[string][]*api.GroupUserList_GroupUser{},
		tables:   map[string]string{},
		profiles: map[string]string{},
	}
}

func ownerOf(userID string) string {
	if userID == "" {
		return uuid.Nil.String()
	}
	return userID
}

func (f *fakeNK) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*api.StorageObject
	for _, r := range reads {
		if obj, ok := f.objects[storageKey{r.Collection, r.Key, ownerOf(r.UserID)}]; ok {
			cp := *obj
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeNK) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range writes {
		cur, exists := f.objects[storageKey{w.Collection, w.Key, ownerOf(w.UserID)}]
		switch {
		case w.Version == "*" && exists:
			return nil, runtime.ErrStorageRejectedVersion
		case w.Version != "" && w.Version != "*" && (!exists || cur.Version != w.Version):
			return nil, runtime.ErrStorageRejectedVersion
		}
	}
	acks := make([]*api.StorageObjectAck, 0, len(writes))
	for _, w := range writes {
		f.seq++
		obj := &api.StorageObject{
			Collection: w.Collection,
			Key:        w.Key,
			UserId:     ownerOf(w.UserID),
			Value:      w.Value,
			Version:    "v" + strconv.Itoa(f.seq),
		}
		f.objects[storageKey{w.Collection, w.Key, obj.UserId}] = obj
		acks = append(acks, &api.StorageObjectAck{Collection: obj.Collection, Key: obj.Key, Version: obj.Version, UserId: obj.UserId})
	}
	return acks, nil
}

func (f *fakeNK) StorageList(ctx context.Context, callerID, userID, collection string, limit int, cursor string) ([]*api.StorageObject, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*api.StorageObject
	for k, obj := range f.objects {
		if k.collection == collection && k.userID == ownerOf(userID) {
			cp := *obj
			out = append(out, &cp)
		}
	}
	return out, "", nil
}

func (f *fakeNK) UsersGetId(ctx context.Context, userIDs []string, facebookIDs []string) ([]*api.User, error) {
	var out []*api.User
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeNK) GroupsGetId(ctx context.Context, groupIDs []string) ([]*api.Group, error) {
	var out []*api.Group
	for _, id := range groupIDs {
		if g, ok := f.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeNK) GroupUsersList(ctx context.Context, id string, limit int, state *int, cursor string) ([]*api.GroupUserList_GroupUser, string, error) {
	return f.members[id], "", nil
}

func (f *fakeNK) AccountUpdateId(ctx context.Context, userID, username string, metadata map[string]interface{}, displayName, timezone, location, langTag, avatarUrl string) error {
	f.profiles[userID] = displayName
	return nil
}

func (f *fakeNK) MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matchID, _ := params[MatchLabelKey_MatchID].(string)
	tableID := "table-" + matchID
	f.tables[matchID] = tableID
	return tableID, nil
}

func (f *fakeNK) MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for matchID, tableID := range f.tables {
		if strings.Contains(query, strconv.Quote(matchID)) {
			return []*api.Match{{MatchId: tableID, Authoritative: true}}, nil
		}
	}
	return nil, nil
}

func (f *fakeNK) MatchSignal(ctx context.Context, id string, data string) (string, error) {
	if f.signalGate != nil {
		<-f.signalGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signalCall{tableID: id, data: data})
	return "", nil
}

func (f *fakeNK) signalCalls() []signalCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signalCall(nil), f.signals...)
}
