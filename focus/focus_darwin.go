package focus

import (
	"context"
	"os/exec"
)

const script = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set roleName to ""
	set titleText to ""
	set valueText to ""
	try
		set el to value of attribute "AXFocusedUIElement" of frontApp
		try
			set roleName to role description of el
		end try
		try
			set titleText to title of el
		end try
		try
			set valueText to value of el as text
		end try
	end try
	return appName & linefeed & roleName & linefeed & titleText & linefeed & valueText
end tell`

func read(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
