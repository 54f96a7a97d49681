//go:build darwin

package clipboard

import (
	"errors"
	"sync"
	"unsafe"
)

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #include <stdlib.h>
// #import <Cocoa/Cocoa.h>
// bool setClipboardContent(const char *text) {
//     NSPasteboard *pasteboard = [NSPasteboard generalPasteboard];
//     [pasteboard clearContents];
//     NSString *s = [NSString stringWithUTF8String:text];
//     return [pasteboard setString:s forType:NSPasteboardTypeString];
// }
import "C"

var clipboardLock sync.Mutex

func setText(text string) error {
	clipboardLock.Lock()
	defer clipboardLock.Unlock()

	cstr := C.CString(text)
	defer C.free(unsafe.Pointer(cstr))
	if !C.setClipboardContent(cstr) {
		return errors.New("failed to set clipboard content")
	}
	return nil
}
