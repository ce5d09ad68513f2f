package definitions

import (
	"strconv"
	"time"

	"github.com/spance/droidbot-go/constants"
	"github.com/valyala/fasttemplate"
)

// ExploreConfig drives the llm event policy.
type ExploreConfig struct {
	MaxSteps int
	Lang     string
}

// GetSystemPrompt renders the exploration prompt for the given screen.
func (c *ExploreConfig) GetSystemPrompt(app App, activity string, display *DisplayInfo) string {
	today := time.Now()

	tpl := constants.ExplorePrompt_ZH
	datetime := ""
	if c.Lang == "en" {
		tpl = constants.ExplorePrompt_EN
		datetime = today.Format("2006-01-02, Monday")
	} else {
		weekdayNames := []string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}
		datetime = today.Format("2006年01月02日") + " " + weekdayNames[today.Weekday()]
	}

	width, height := constants.DefaultScreenWidth, constants.DefaultScreenHeight
	if display != nil {
		width, height = display.Width, display.Height
	}
	if activity == "" {
		activity = "unknown"
	}

	return fasttemplate.ExecuteString(tpl, "{{ ", " }}", map[string]interface{}{
		"datetime": datetime,
		"package":  app.Package,
		"activity": activity,
		"width":    strconv.Itoa(width),
		"height":   strconv.Itoa(height),
	})
}
