package ui

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/mahasiswa/internal/client"
)

// 表示メッセージ
const (
	MsgLoadFailed = "Terjadi kesalahan saat memuat data. Pastikan server backend sudah berjalan dan database tersambung."
	MsgCreated    = "Data mahasiswa berhasil ditambahkan ke sistem!"
	MsgUpdated    = "Data mahasiswa berhasil diperbarui!"
	MsgDeleted    = "Data mahasiswa berhasil dihapus dari sistem!"

	msgCreateFailed = "Gagal menambahkan mahasiswa"
	msgUpdateFailed = "Gagal mengupdate mahasiswa"
	msgDeleteFailed = "Gagal menghapus mahasiswa"
)

// デフォルトの時間設定
const (
	DefaultPollInterval = 30 * time.Second
	DefaultSuccessTTL   = 3 * time.Second
	DefaultErrorTTL     = 5 * time.Second
)

// Gateway はAppが使用するAPIクライアントのインターフェース。
type Gateway interface {
	List(ctx context.Context) ([]client.Mahasiswa, error)
	Create(ctx context.Context, input client.Input) (*client.Mahasiswa, error)
	Update(ctx context.Context, id int64, input client.Input) (*client.Mahasiswa, error)
	Delete(ctx context.Context, id int64) error
	Health(ctx context.Context) (*client.Health, error)
}

// State はAppが保持する表示状態のスナップショット。
type State struct {
	Students   []client.Mahasiswa
	Editing    *client.Mahasiswa
	Form       Form
	FormErrors FieldErrors
	Loading    bool
	Success    string
	Error      string
	Online     bool
}

// Config はAppの時間設定と変更通知。
type Config struct {
	PollInterval time.Duration
	SuccessTTL   time.Duration
	ErrorTTL     time.Duration

	// OnChange は状態が変わるたびに呼ばれる。ロック外から呼ばれる。
	OnChange func(State)
}

// App はレコード一覧・編集対象・バナー・接続状態を保持するルートオーケストレーター。
// 変更操作の後は常に一覧を再取得し、楽観的更新は行わない。
// APIの呼び出しにはキャンセルされないコンテキストを使い、開始した呼び出しは必ず完了まで待つ。
type App struct {
	gw  Gateway
	cfg Config

	mu           sync.Mutex
	state        State
	successTimer *time.Timer
	errorTimer   *time.Timer
	successGen   uint64
	errorGen     uint64
	closed       bool

	startOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New は新しいAppを生成する。0の時間設定はデフォルト値で補う。
func New(gw Gateway, cfg Config) *App {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SuccessTTL <= 0 {
		cfg.SuccessTTL = DefaultSuccessTTL
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = DefaultErrorTTL
	}
	return &App{
		gw:     gw,
		cfg:    cfg,
		state:  State{Students: []client.Mahasiswa{}, Online: true},
		stopCh: make(chan struct{}),
	}
}

// Start は一覧を1回取得し、ライブネスのポーリングを開始する。
// ポーリングはデータ取得とは独立したゴルーチンで動作する。
func (a *App) Start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.pollLoop()
		a.Reload()
	})
}

// Close はポーリングを停止し、未発火のバナータイマーを取り消す。
// Close後は状態が変化しない。
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	stopTimer(a.successTimer)
	stopTimer(a.errorTimer)
	a.successTimer, a.errorTimer = nil, nil
	close(a.stopCh)
	a.mu.Unlock()

	a.wg.Wait()
}

// Snapshot は現在の状態のコピーを返す。
func (a *App) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Reload は一覧を再取得する。失敗時はエラーバナーを表示する（自動では消えない）。
func (a *App) Reload() {
	a.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})
	a.load()
	a.update(func(s *State) { s.Loading = false })
}

// CheckHealth はライブネスを確認し、成否だけで接続状態を更新する。
func (a *App) CheckHealth() {
	_, err := a.gw.Health(context.Background())
	a.update(func(s *State) { s.Online = err == nil })
}

// SetForm はフォームの入力値を更新する。
func (a *App) SetForm(f Form) {
	a.update(func(s *State) { s.Form = f })
}

// Submit はフォームを検証し、編集中かどうかで作成または更新を行う。
// 成功時は編集対象とフォームをクリアし、成功バナーを表示して一覧を再取得する。
// 失敗時はゲートウェイのメッセージをエラーバナーに表示する。成功した場合trueを返す。
func (a *App) Submit(f Form) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.state.Form = f
	if errs := f.Validate(); errs != nil {
		a.state.FormErrors = errs
		snap := a.snapshotLocked()
		a.mu.Unlock()
		a.notify(snap)
		return false
	}
	a.state.FormErrors = nil
	a.state.Loading = true
	a.state.Error = ""
	a.state.Success = ""
	var editing *client.Mahasiswa
	if a.state.Editing != nil {
		cp := *a.state.Editing
		editing = &cp
	}
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)

	ctx := context.Background()
	var err error
	successMsg, failMsg := MsgCreated, msgCreateFailed
	if editing != nil {
		successMsg, failMsg = MsgUpdated, msgUpdateFailed
		_, err = a.gw.Update(ctx, editing.ID, f.Input())
	} else {
		_, err = a.gw.Create(ctx, f.Input())
	}

	if err != nil {
		a.showError(client.MessageOf(err, failMsg))
		a.update(func(s *State) { s.Loading = false })
		return false
	}

	a.update(func(s *State) {
		s.Editing = nil
		s.Form = Form{}
	})
	a.showSuccess(successMsg)
	a.load()
	a.update(func(s *State) { s.Loading = false })
	return true
}

// Edit は指定IDのレコードを編集対象にし、フォームに現在値を設定してバナーを消す。
// 一覧に存在しないIDの場合はfalseを返す。
func (a *App) Edit(id int64) bool {
	a.mu.Lock()
	idx := slices.IndexFunc(a.state.Students, func(st client.Mahasiswa) bool { return st.ID == id })
	if idx < 0 || a.closed {
		a.mu.Unlock()
		return false
	}
	target := a.state.Students[idx]
	a.state.Editing = &target
	a.state.Form = FormFrom(target)
	a.state.FormErrors = nil
	a.clearBannersLocked()
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.notify(snap)
	return true
}

// CancelEdit は編集対象・フォーム・バナーをクリアする。
func (a *App) CancelEdit() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.state.Editing = nil
	a.state.Form = Form{}
	a.state.FormErrors = nil
	a.clearBannersLocked()
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.notify(snap)
}

// Delete はconfirmで確認したうえでレコードを削除し、一覧を再取得する。
// confirmがfalseを返した場合、または一覧に存在しないIDの場合は何もしない。
func (a *App) Delete(id int64, confirm func(client.Mahasiswa) bool) bool {
	a.mu.Lock()
	idx := slices.IndexFunc(a.state.Students, func(st client.Mahasiswa) bool { return st.ID == id })
	if idx < 0 || a.closed {
		a.mu.Unlock()
		return false
	}
	target := a.state.Students[idx]
	a.mu.Unlock()

	if confirm != nil && !confirm(target) {
		return false
	}

	a.update(func(s *State) {
		s.Loading = true
		s.Error = ""
		s.Success = ""
	})

	if err := a.gw.Delete(context.Background(), id); err != nil {
		a.showError(client.MessageOf(err, msgDeleteFailed))
		a.update(func(s *State) { s.Loading = false })
		return false
	}

	a.showSuccess(MsgDeleted)
	a.load()
	a.update(func(s *State) { s.Loading = false })
	return true
}

// ConfirmPrompt は削除確認の文言を返す。
func ConfirmPrompt(st client.Mahasiswa) string {
	return fmt.Sprintf("Apakah Anda yakin ingin menghapus data mahasiswa %s dengan NIM %s?", st.Nama, st.NIM)
}

func (a *App) load() {
	students, err := a.gw.List(context.Background())
	a.update(func(s *State) {
		if err != nil {
			s.Error = MsgLoadFailed
			return
		}
		s.Students = students
	})
}

func (a *App) pollLoop() {
	defer a.wg.Done()

	a.CheckHealth()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.CheckHealth()
		case <-a.stopCh:
			return
		}
	}
}

// showSuccess は成功バナーを表示し、SuccessTTL後に消えるタイマーを設定する。
func (a *App) showSuccess(msg string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.state.Success = msg
	stopTimer(a.successTimer)
	a.successGen++
	gen := a.successGen
	a.successTimer = time.AfterFunc(a.cfg.SuccessTTL, func() {
		a.expire(func() bool { return a.successGen == gen }, func(s *State) { s.Success = "" })
	})
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
}

// showError はエラーバナーを表示し、ErrorTTL後に消えるタイマーを設定する。
func (a *App) showError(msg string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.state.Error = msg
	stopTimer(a.errorTimer)
	a.errorGen++
	gen := a.errorGen
	a.errorTimer = time.AfterFunc(a.cfg.ErrorTTL, func() {
		a.expire(func() bool { return a.errorGen == gen }, func(s *State) { s.Error = "" })
	})
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
}

// expire はタイマー発火時に、置き換えられておらずClose前であればバナーを消す。
func (a *App) expire(current func() bool, clear func(*State)) {
	a.mu.Lock()
	if a.closed || !current() {
		a.mu.Unlock()
		return
	}
	clear(&a.state)
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
}

// clearBannersLocked はバナーと未発火のタイマーを消す。a.muを保持して呼ぶこと。
func (a *App) clearBannersLocked() {
	a.state.Success = ""
	a.state.Error = ""
	stopTimer(a.successTimer)
	stopTimer(a.errorTimer)
	a.successTimer, a.errorTimer = nil, nil
	a.successGen++
	a.errorGen++
}

// update は状態を変更し、変更通知を送る。Close後は何もしない。
func (a *App) update(fn func(*State)) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	fn(&a.state)
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
}

func (a *App) notify(s State) {
	if a.cfg.OnChange != nil {
		a.cfg.OnChange(s)
	}
}

func (a *App) snapshotLocked() State {
	s := a.state
	s.Students = slices.Clone(a.state.Students)
	if a.state.Editing != nil {
		cp := *a.state.Editing
		s.Editing = &cp
	}
	if a.state.FormErrors != nil {
		s.FormErrors = make(FieldErrors, len(a.state.FormErrors))
		for k, v := range a.state.FormErrors {
			s.FormErrors[k] = v
		}
	}
	return s
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
