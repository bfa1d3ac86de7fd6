package gateway

import (
	"context"
	"fmt"
	"sync"
)

// FakeCall is one recorded call on Fake.
type FakeCall struct {
	Method   string
	Instance string
	Args     []any
}

// Fake is an in-memory API used by the pipeline tests. Errors set in Errs are returned by
// the named method; SendText/SendMedia hand out sequential ids.
type Fake struct {
	mu    sync.Mutex
	Calls []FakeCall
	Errs  map[string]error
	seq   int

	Groups        map[string]*GroupInfo
	Participants  map[string][]Participant
	Pictures      map[string]string
	Pushnames     map[string]string
	States        map[string]string
	Media         map[string][]byte
	MediaTypes    map[string]string
	CreatedAPIKey string
}

var _ API = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		Errs:         map[string]error{},
		Groups:       map[string]*GroupInfo{},
		Participants: map[string][]Participant{},
		Pictures:     map[string]string{},
		Pushnames:    map[string]string{},
		States:       map[string]string{},
		Media:        map[string][]byte{},
		MediaTypes:   map[string]string{},
	}
}

func (f *Fake) record(method string, t Target, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Method: method, Instance: t.InstanceName, Args: args})
	return f.Errs[method]
}

// Called returns the recorded calls of method.
func (f *Fake) Called(method string) []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeCall
	for _, c := range f.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) SetErr(method string, err error) {
	f.mu.Lock()
	f.Errs[method] = err
	f.mu.Unlock()
}

func (f *Fake) nextID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("GW%04d", f.seq)
}

func (f *Fake) SendText(_ context.Context, t Target, to, text string) (string, error) {
	if err := f.record("SendText", t, to, text); err != nil {
		return "", err
	}
	return f.nextID(), nil
}

func (f *Fake) SendMedia(_ context.Context, t Target, to, mediaURL, caption string, kind MediaKind) (string, error) {
	if err := f.record("SendMedia", t, to, mediaURL, caption, kind); err != nil {
		return "", err
	}
	return f.nextID(), nil
}

func (f *Fake) SendReaction(_ context.Context, t Target, remoteJID, messageID string, fromMe bool, emoji string) error {
	return f.record("SendReaction", t, remoteJID, messageID, fromMe, emoji)
}

func (f *Fake) MarkRead(_ context.Context, t Target, keys []ReadKey) error {
	return f.record("MarkRead", t, keys)
}

func (f *Fake) DeleteForEveryone(_ context.Context, t Target, remoteJID, messageID string, fromMe bool) error {
	return f.record("DeleteForEveryone", t, remoteJID, messageID, fromMe)
}

func (f *Fake) FindGroupInfo(_ context.Context, t Target, groupJID string, withParticipants bool) (*GroupInfo, error) {
	if err := f.record("FindGroupInfo", t, groupJID, withParticipants); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.Groups[groupJID]
	if !ok {
		return nil, ErrGone
	}
	cp := *g
	return &cp, nil
}

func (f *Fake) FetchAllGroups(_ context.Context, t Target) ([]GroupSummary, error) {
	if err := f.record("FetchAllGroups", t); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GroupSummary, 0, len(f.Groups))
	for _, g := range f.Groups {
		out = append(out, GroupSummary{ID: g.ID, Subject: g.Subject, Size: g.Size})
	}
	return out, nil
}

func (f *Fake) FetchParticipants(_ context.Context, t Target, groupJID string) ([]Participant, error) {
	if err := f.record("FetchParticipants", t, groupJID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Participant(nil), f.Participants[groupJID]...), nil
}

func (f *Fake) FetchProfilePicture(_ context.Context, t Target, phone string) (string, error) {
	if err := f.record("FetchProfilePicture", t, phone); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Pictures[phone]
	if !ok {
		return "", ErrGone
	}
	return u, nil
}

func (f *Fake) FetchPushname(_ context.Context, t Target, phone string) (string, error) {
	if err := f.record("FetchPushname", t, phone); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pushnames[phone], nil
}

func (f *Fake) ConnectionState(_ context.Context, t Target) (string, error) {
	if err := f.record("ConnectionState", t); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.States[t.InstanceName]; ok {
		return s, nil
	}
	return StateOpen, nil
}

func (f *Fake) Connect(_ context.Context, t Target) (string, error) {
	if err := f.record("Connect", t); err != nil {
		return "", err
	}
	return "data:image/png;base64,QR", nil
}

func (f *Fake) CreateInstance(_ context.Context, name, webhookURL string, events []string) (string, error) {
	if err := f.record("CreateInstance", Target{InstanceName: name}, webhookURL, events); err != nil {
		return "", err
	}
	if f.CreatedAPIKey != "" {
		return f.CreatedAPIKey, nil
	}
	return "key-" + name, nil
}

func (f *Fake) Logout(_ context.Context, t Target) error {
	return f.record("Logout", t)
}

func (f *Fake) DeleteInstance(_ context.Context, t Target) error {
	return f.record("DeleteInstance", t)
}

func (f *Fake) DownloadMedia(_ context.Context, mediaURL string) ([]byte, string, error) {
	if err := f.record("DownloadMedia", Target{}, mediaURL); err != nil {
		return nil, "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Media[mediaURL]
	if !ok {
		return nil, "", ErrGone
	}
	return append([]byte(nil), data...), f.MediaTypes[mediaURL], nil
}
