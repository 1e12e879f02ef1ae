package cli

import (
	"os"
	"sync"

	"golang.org/x/term"
)

type clientHotkey int

const (
	hotkeyRetry clientHotkey = iota + 1
	hotkeyEnable
	hotkeyQuit
)

const hotkeyCtrlC = 0x03

func hotkeyFor(b byte) (clientHotkey, bool) {
	switch b {
	case 'r', 'R':
		return hotkeyRetry, true
	case 'e', 'E':
		return hotkeyEnable, true
	case 'q', 'Q', hotkeyCtrlC:
		return hotkeyQuit, true
	}
	return 0, false
}

// startClientHotkeyListener puts stdin in raw mode and emits a hotkey for
// every recognized key press. The returned func restores the terminal.
func startClientHotkeyListener() (<-chan clientHotkey, func(), error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, func() {}, err
	}

	keys := make(chan clientHotkey, 1)
	go func() {
		var b [1]byte
		for {
			n, err := os.Stdin.Read(b[:])
			if err != nil || n == 0 {
				return
			}
			k, ok := hotkeyFor(b[0])
			if !ok {
				continue
			}
			select {
			case keys <- k:
			default:
			}
		}
	}()

	var once sync.Once
	restore := func() {
		once.Do(func() {
			_ = term.Restore(fd, state)
		})
	}
	return keys, restore, nil
}
