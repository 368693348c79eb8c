package bridge

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// Presser taps a single key.
type Presser interface {
	Press(key int) error
}

var keyCodes = map[string]int{
	"LEFT":  keybd_event.VK_LEFT,
	"RIGHT": keybd_event.VK_RIGHT,
	"UP":    keybd_event.VK_UP,
	"DOWN":  keybd_event.VK_DOWN,
	"SPACE": keybd_event.VK_SPACE,
	"ENTER": keybd_event.VK_ENTER,

	"A": keybd_event.VK_A, "B": keybd_event.VK_B, "C": keybd_event.VK_C, "D": keybd_event.VK_D,
	"E": keybd_event.VK_E, "F": keybd_event.VK_F, "G": keybd_event.VK_G, "H": keybd_event.VK_H,
	"I": keybd_event.VK_I, "J": keybd_event.VK_J, "K": keybd_event.VK_K, "L": keybd_event.VK_L,
	"M": keybd_event.VK_M, "N": keybd_event.VK_N, "O": keybd_event.VK_O, "P": keybd_event.VK_P,
	"Q": keybd_event.VK_Q, "R": keybd_event.VK_R, "S": keybd_event.VK_S, "T": keybd_event.VK_T,
	"U": keybd_event.VK_U, "V": keybd_event.VK_V, "W": keybd_event.VK_W, "X": keybd_event.VK_X,
	"Y": keybd_event.VK_Y, "Z": keybd_event.VK_Z,

	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2, "3": keybd_event.VK_3,
	"4": keybd_event.VK_4, "5": keybd_event.VK_5, "6": keybd_event.VK_6, "7": keybd_event.VK_7,
	"8": keybd_event.VK_8, "9": keybd_event.VK_9,
}

// KeyCode maps a key name from the config (case-insensitive) to its virtual key code.
func KeyCode(name string) (int, bool) {
	code, ok := keyCodes[strings.ToUpper(strings.TrimSpace(name))]
	return code, ok
}

// KeyboardPresser injects key presses into the OS input queue.
type KeyboardPresser struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

func NewKeyboardPresser() (*KeyboardPresser, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, err
	}
	// uinput needs a moment before the new virtual device accepts events
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	return &KeyboardPresser{kb: kb}, nil
}

func (p *KeyboardPresser) Press(key int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kb.Clear()
	p.kb.SetKeys(key)
	return p.kb.Launching()
}
