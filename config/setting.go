package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrUnknownSetting is returned when Set is asked for a setting identifier
// this version does not define. Unknown keys are rejected, never ignored: a
// typo in an operator script should fail loudly, not silently keep the old
// value.
var ErrUnknownSetting = errors.New("config: unknown setting")

// Setting identifies one mutable configuration field.
type Setting string

const (
	SettingPDFPath              Setting = "pdf_path"
	SettingPDFURL               Setting = "pdf_url"
	SettingRetentionCap         Setting = "retention_cap"
	SettingDwellTime            Setting = "page_dwell_time"
	SettingCompressionTolerance Setting = "compression_length_tolerance"
	SettingScreenshotConfidence Setting = "screenshot_diff_confidence"
	SettingScreenshotTolerance  Setting = "screenshot_diff_tolerance"
	SettingKeepLocalRecords     Setting = "keep_local_records"
	SettingLocalPageCount       Setting = "num_of_local_pages"
	SettingBrowserRemote        Setting = "browser_remote"
	SettingBrowserHeadless      Setting = "browser_headless"
	SettingBrowserWidth         Setting = "browser_width"
	SettingBrowserHeight        Setting = "browser_height"
	SettingPageLoadTimeout      Setting = "browser_page_load_timeout"
	SettingScriptTimeout        Setting = "browser_script_timeout"
)

// Set parses value and assigns it to the identified setting. The value is
// the operator-facing string form; parse failures and unknown identifiers
// are both errors.
func (c *Config) Set(key Setting, value string) error {
	switch key {
	case SettingPDFPath:
		c.PDFPath = value
	case SettingPDFURL:
		c.PDFURL = value
	case SettingRetentionCap:
		return setInt(&c.RetentionCap, key, value)
	case SettingDwellTime:
		return setSeconds(&c.DwellTime, key, value)
	case SettingCompressionTolerance:
		return setInt(&c.CompressionTolerance, key, value)
	case SettingScreenshotConfidence:
		return setInt(&c.ScreenshotConfidence, key, value)
	case SettingScreenshotTolerance:
		return setInt(&c.ScreenshotTolerance, key, value)
	case SettingKeepLocalRecords:
		return setBool(&c.KeepLocalRecords, key, value)
	case SettingLocalPageCount:
		return setInt(&c.LocalPageCount, key, value)
	case SettingBrowserRemote:
		c.Browser.Remote = value
	case SettingBrowserHeadless:
		return setBool(&c.Browser.Headless, key, value)
	case SettingBrowserWidth:
		return setInt(&c.Browser.Width, key, value)
	case SettingBrowserHeight:
		return setInt(&c.Browser.Height, key, value)
	case SettingPageLoadTimeout:
		return setSeconds(&c.Browser.PageLoadTimeout, key, value)
	case SettingScriptTimeout:
		return setSeconds(&c.Browser.ScriptTimeout, key, value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	return nil
}

func setInt(dst *int, key Setting, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key Setting, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setSeconds(dst *time.Duration, key Setting, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Second
	return nil
}
