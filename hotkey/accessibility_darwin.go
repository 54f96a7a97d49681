//go:build darwin

package hotkey

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework Foundation
#import <ApplicationServices/ApplicationServices.h>
#import <Foundation/Foundation.h>

bool isAccessibilityEnabled(bool prompt) {
    NSDictionary *opts = @{(__bridge id)kAXTrustedCheckOptionPrompt: @(prompt)};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)opts);
}
*/
import "C"

// IsAccessibilityEnabled reports whether the process may observe global key
// events. With prompt set the system permission dialog is shown once.
func IsAccessibilityEnabled(prompt bool) bool {
	return bool(C.isAccessibilityEnabled(C.bool(prompt)))
}
