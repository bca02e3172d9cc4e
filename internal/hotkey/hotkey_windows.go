//go:build windows

package hotkey

import (
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"
)

// Listen installs a WH_KEYBOARD_LL hook and dispatches hold-key and
// reset-combo activity to h. A global hotkey registration would not see
// the keyup we need for hold-to-record, so the low-level hook is the only
// option here. Returns after the hook is installed; events flow on a
// dedicated locked OS thread for as long as the process lives.
func Listen(cfg Config, h Handlers) error {
	holdSpec, err := ParseSpec(cfg.HoldKey)
	if err != nil {
		return fmt.Errorf("invalid HOTKEY: %w", err)
	}
	var resetSpec Spec
	haveReset := cfg.ResetCombo != ""
	if haveReset {
		resetSpec, err = ParseSpec(cfg.ResetCombo)
		if err != nil {
			return fmt.Errorf("invalid RESET_COMBO: %w", err)
		}
	}
	if cfg.Debug {
		fmt.Printf("[hotkey] hold=0x%X reset=mod0x%X+0x%X\n", holdSpec.VK, resetSpec.Mods, resetSpec.VK)
	}

	errCh := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		user32 := syscall.NewLazyDLL("user32.dll")
		procSetWindowsHookExW := user32.NewProc("SetWindowsHookExW")
		procUnhookWindowsHookEx := user32.NewProc("UnhookWindowsHookEx")
		procCallNextHookEx := user32.NewProc("CallNextHookEx")
		procGetMessageW := user32.NewProc("GetMessageW")
		procGetAsyncKeyState := user32.NewProc("GetAsyncKeyState")

		const (
			WH_KEYBOARD_LL = 13
			WM_KEYDOWN     = 0x0100
			WM_KEYUP       = 0x0101
			WM_SYSKEYDOWN  = 0x0104
			WM_SYSKEYUP    = 0x0105
			LLKHF_INJECTED = 0x10
			VK_SHIFT       = 0x10
			VK_CONTROL     = 0x11
			VK_MENU        = 0x12
			VK_LWIN        = 0x5B
			VK_RWIN        = 0x5C
		)

		type kbdllHookStruct struct {
			vkCode      uint32
			scanCode    uint32
			flags       uint32
			time        uint32
			dwExtraInfo uintptr
		}

		modsDown := func(required uint32) bool {
			check := func(vk uintptr) bool {
				st, _, _ := procGetAsyncKeyState.Call(vk)
				return (st & 0x8000) != 0
			}
			if required&ModCtrl != 0 && !check(VK_CONTROL) {
				return false
			}
			if required&ModAlt != 0 && !check(VK_MENU) {
				return false
			}
			if required&ModShift != 0 && !check(VK_SHIFT) {
				return false
			}
			if required&ModWin != 0 && !check(VK_LWIN) && !check(VK_RWIN) {
				return false
			}
			return true
		}

		tracker := NewTracker(0)

		callback := syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			if int32(nCode) < 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}

			msg := uint32(wParam)
			k := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			vk := k.vkCode

			// Synthetic events (e.g. our own paste keystrokes) pass through
			// untouched or we would feed ourselves.
			if (k.flags & LLKHF_INJECTED) != 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}

			down := msg == WM_KEYDOWN || msg == WM_SYSKEYDOWN
			up := msg == WM_KEYUP || msg == WM_SYSKEYUP

			if haveReset && down && vk == resetSpec.VK && modsDown(resetSpec.Mods) {
				if cfg.Debug {
					fmt.Println("[hotkey] reset combo")
				}
				go h.Reset()
				return 1
			}

			if vk == holdSpec.VK && modsDown(holdSpec.Mods) {
				if down {
					kind := tracker.KeyDown(time.Now())
					if cfg.Debug && kind != Repeat {
						fmt.Printf("[hotkey] %v\n", kind)
					}
					go h.Event(kind)
					return 1
				}
				if up {
					if kind, ok := tracker.KeyUp(); ok {
						if cfg.Debug {
							fmt.Printf("[hotkey] %v\n", kind)
						}
						go h.Event(kind)
						return 1
					}
				}
			} else if up && vk == holdSpec.VK {
				// Keyup for the hold key with modifiers no longer satisfied
				// still ends the hold.
				if kind, ok := tracker.KeyUp(); ok {
					go h.Event(kind)
					return 1
				}
			}

			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})

		hook, _, _ := procSetWindowsHookExW.Call(uintptr(WH_KEYBOARD_LL), callback, 0, 0)
		if hook == 0 {
			errCh <- fmt.Errorf("SetWindowsHookExW failed")
			return
		}
		if cfg.Debug {
			fmt.Println("[hotkey] low-level hook installed")
		}
		errCh <- nil

		var msg struct {
			Hwnd    uintptr
			Message uint32
			WParam  uintptr
			LParam  uintptr
			Time    uint32
			PtX     int32
			PtY     int32
		}
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) == -1 || ret == 0 {
				break
			}
		}
		procUnhookWindowsHookEx.Call(hook)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timeout installing keyboard hook")
	}
}
