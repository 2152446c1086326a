package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the automation capability the bot and guard operate against. It is
// deliberately narrow so tests can substitute a scripted fake for the real
// playwright page.
type Page interface {
	Goto(url string) error
	Reload() error
	URL() string
	Title() (string, error)
	Content() (string, error)
	Evaluate(script string) (interface{}, error)
	WaitForSelector(selector string, timeout time.Duration) error
	Click(selector string) error
	Fill(selector, value string) error
	TypeSlowly(selector, text string, delay time.Duration) error
	Count(selector string) int
	Visible(selector string) bool
	InnerText(selector string) (string, error)
	InputValue(selector string) (string, error)
	SelectOption(selector, value string) error
	DispatchEvent(selector, event string) error
	SetFieldValueWithEvents(selector, value string) error
	Screenshot(selector string) ([]byte, error)
	Focus(selector string) error
	KeyDown(key string) error
	KeyUp(key string) error
	Close() error
}

// PWPage adapts a playwright page to the Page capability.
type PWPage struct {
	page    playwright.Page
	timeout time.Duration
}

func (p *PWPage) Raw() playwright.Page {
	return p.page
}

func (p *PWPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *PWPage) Reload() error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	return nil
}

func (p *PWPage) URL() string {
	return p.page.URL()
}

func (p *PWPage) Title() (string, error) {
	return p.page.Title()
}

func (p *PWPage) Content() (string, error) {
	return p.page.Content()
}

func (p *PWPage) Evaluate(script string) (interface{}, error) {
	return p.page.Evaluate(script)
}

func (p *PWPage) WaitForSelector(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *PWPage) Click(selector string) error {
	return p.page.Locator(selector).First().Click()
}

func (p *PWPage) Fill(selector, value string) error {
	return p.page.Locator(selector).First().Fill(value)
}

// TypeSlowly enters text one keystroke at a time to mimic human typing.
func (p *PWPage) TypeSlowly(selector, text string, delay time.Duration) error {
	return p.page.Locator(selector).First().PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(float64(delay.Milliseconds())),
	})
}

func (p *PWPage) Count(selector string) int {
	count, err := p.page.Locator(selector).Count()
	if err != nil {
		return 0
	}
	return count
}

func (p *PWPage) Visible(selector string) bool {
	visible, err := p.page.Locator(selector).First().IsVisible()
	if err != nil {
		return false
	}
	return visible
}

func (p *PWPage) InnerText(selector string) (string, error) {
	return p.page.Locator(selector).First().InnerText()
}

func (p *PWPage) InputValue(selector string) (string, error) {
	return p.page.Locator(selector).First().InputValue()
}

func (p *PWPage) SelectOption(selector, value string) error {
	_, err := p.page.Locator(selector).First().SelectOption(playwright.SelectOptionValues{
		Values: &[]string{value},
	})
	return err
}

func (p *PWPage) DispatchEvent(selector, event string) error {
	return p.page.Locator(selector).First().DispatchEvent(event, nil)
}

// SetFieldValueWithEvents writes a field value and fires the bubbling input
// and change events the site's reactive validation listens for. Setting the
// value alone leaves the submit button disabled.
func (p *PWPage) SetFieldValueWithEvents(selector, value string) error {
	_, err := p.page.Evaluate(`(args) => {
		const field = document.querySelector(args.selector);
		if (!field) {
			return false;
		}
		field.focus();
		field.value = args.value;
		const inputEvent = new Event('input', { bubbles: true, cancelable: true });
		const changeEvent = new Event('change', { bubbles: true, cancelable: true });
		field.dispatchEvent(inputEvent);
		field.dispatchEvent(changeEvent);
		if (field.oninput) field.oninput(inputEvent);
		if (field.onchange) field.onchange(changeEvent);
		return true;
	}`, map[string]interface{}{
		"selector": selector,
		"value":    value,
	})
	return err
}

func (p *PWPage) Screenshot(selector string) ([]byte, error) {
	return p.page.Locator(selector).First().Screenshot()
}

func (p *PWPage) Focus(selector string) error {
	return p.page.Locator(selector).First().Focus()
}

func (p *PWPage) KeyDown(key string) error {
	return p.page.Keyboard().Down(key)
}

func (p *PWPage) KeyUp(key string) error {
	return p.page.Keyboard().Up(key)
}

func (p *PWPage) Close() error {
	return p.page.Close()
}
