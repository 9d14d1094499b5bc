package app

// Event는 변경된 상태 조각을 나타냅니다
type Event int

const (
	EventSession Event = iota
	EventBots
	EventWallet
	EventPortfolio
)

// String은 Event의 문자열 표현을 반환합니다
func (e Event) String() string {
	switch e {
	case EventSession:
		return "session"
	case EventBots:
		return "bots"
	case EventWallet:
		return "wallet"
	case EventPortfolio:
		return "portfolio"
	default:
		return "unknown"
	}
}

// Subscribe는 상태 변경 알림을 받을 함수를 등록합니다. 반환된 함수로 등록을 해제합니다.
// fn은 상태를 바꾼 고루틴에서 잠금 없이 호출되므로 오래 걸리는 작업을 하면 안 됩니다.
func (a *App) Subscribe(fn func(Event)) (cancel func()) {
	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

func (a *App) emit(e Event) {
	a.subMu.RLock()
	fns := make([]func(Event), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
