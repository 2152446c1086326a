package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/content"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/guard"
)

// stepResult tags the outcome of an item-level step so control flow stays
// explicit instead of being threaded through errors.
type stepResult int

const (
	// resultContinue means the step succeeded and the item keeps moving.
	resultContinue stepResult = iota
	// resultSkipItem abandons the current item without counting it.
	resultSkipItem
	// resultDone ends the run as a natural completion.
	resultDone
	// resultFatal aborts the run; the accompanying error says why.
	resultFatal
)

const (
	// maxDuplicateRetries caps how often the same item may reappear before
	// it is force-counted and left behind.
	maxDuplicateRetries = 3
	// itemDeadlineSeconds is the wall-clock budget for preparing one item.
	itemDeadlineSeconds = 60
)

const genericDescription = "High quality AI generated image suitable for creative and commercial projects."

// editHrefPattern matches edit links for queued uploads: a recognizable path
// segment followed by the numeric item identifier.
var editHrefPattern = regexp.MustCompile(`(?i)/(?:edit|submit)[^"'\s]*?(\d{4,})`)

// genericItemSelectors are last-resort hooks for opening a queued item when
// the portal markup has drifted.
var genericItemSelectors = []string{
	"div.upload-item a",
	".js-uploads-list a",
	"div.thumbnail a",
}

// processItems works through the upload queue until it runs dry, the repeat
// limit is reached, or the operator asks to stop.
func (b *Bot) processItems(ctx context.Context) error {
	b.recorder.Record(6, "Processing the submission queue", StatusInfo)

	for b.state.ProcessedCount < b.opts.RepeatCount {
		if b.state.StopRequested() {
			return guard.ErrStopRequested
		}

		opened, err := b.openNextItem()
		if err != nil {
			return err
		}
		if !opened {
			b.recorder.Record(6, "No more images ready to submit", StatusSuccess)
			return nil
		}

		res, err := b.processItem(ctx)
		if err != nil {
			return err
		}
		switch res {
		case resultDone:
			return nil
		case resultSkipItem:
			continue
		}

		if err := b.pace(); err != nil {
			return err
		}
	}

	b.recorder.Record(6, fmt.Sprintf("Reached the configured limit of %d images", b.opts.RepeatCount), StatusSuccess)
	return nil
}

// openNextItem returns to the queue page and opens the first item that is
// ready to submit. It reports false when the queue is empty.
func (b *Bot) openNextItem() (bool, error) {
	if err := b.page.Goto(UploadURL); err != nil {
		if rerr := b.guard.RecoverStuck(b.page, &b.state.ConsecutiveStuck); rerr != nil {
			return false, rerr
		}
		if err := b.page.Goto(UploadURL); err != nil {
			return false, fmt.Errorf("returning to the upload queue: %w", err)
		}
	}
	if err := b.waitSeconds(2); err != nil {
		return false, err
	}
	if err := b.guard.ResolveChallenge(b.page, b.state.StopRequested); err != nil {
		return false, err
	}

	if b.page.Count(selReadyItem) > 0 {
		if err := b.page.Click(selEditLink); err == nil {
			return true, b.waitSeconds(3)
		}
		b.logger.Warn("edit link click failed, trying fallbacks")
	}

	if href := b.findEditHref(); href != "" {
		if err := b.page.Click(fmt.Sprintf(`a[href=%q]`, href)); err == nil {
			return true, b.waitSeconds(3)
		}
	}

	for _, sel := range genericItemSelectors {
		if b.page.Count(sel) == 0 {
			continue
		}
		if err := b.page.Click(sel); err == nil {
			return true, b.waitSeconds(3)
		}
	}
	return false, nil
}

// findEditHref scans the queue page markup for an edit link when the usual
// selectors come up empty.
func (b *Bot) findEditHref() string {
	html, err := b.page.Content()
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if editHrefPattern.MatchString(href) {
			found = href
			return false
		}
		return true
	})
	return found
}

// processItem runs one item through the full pipeline: form load, duplicate
// check, metadata, categorization, submission.
func (b *Bot) processItem(ctx context.Context) (stepResult, error) {
	openedAt := time.Now()

	if err := b.guard.AwaitSelector(b.page, selTitle, 10*b.unit, &b.state.ConsecutiveStuck); err != nil {
		if errors.Is(err, guard.ErrStuckExhausted) || errors.Is(err, guard.ErrStopRequested) {
			return resultFatal, err
		}
		b.recorder.Record(7, "Submission form did not load, moving on", StatusWarning)
		return resultSkipItem, nil
	}

	id := b.currentItemID()
	if res, err := b.handleDuplicate(id); res != resultContinue || err != nil {
		return res, err
	}

	if res, err := b.populateFields(ctx, id); res != resultContinue || err != nil {
		return res, err
	}
	if err := b.categorize(); err != nil {
		return resultFatal, err
	}
	return b.submitItem(openedAt)
}

func (b *Bot) currentItemID() string {
	txt, err := b.page.InnerText(selItemID)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(txt)
}

// handleDuplicate reacts to the portal serving the same item twice in a row.
// Under the stop policy a repeat means the queue is exhausted; under the
// skip policy the item is passed over, and after repeated reappearances it
// is counted anyway so the run cannot spin forever.
func (b *Bot) handleDuplicate(id string) (stepResult, error) {
	if id == "" || id != b.state.LastItemID {
		if id != "" {
			b.state.LastItemID = id
		}
		b.state.DuplicateRetries = 0
		return resultContinue, nil
	}

	if b.opts.SameIDAction == DuplicateStop {
		b.recorder.Record(6, "Same image served twice, no new images to process", StatusInfo)
		return resultDone, nil
	}

	b.state.DuplicateRetries++
	if b.state.DuplicateRetries >= maxDuplicateRetries {
		b.recorder.Record(6, fmt.Sprintf("Image %s kept reappearing, counting it and moving on", id), StatusWarning)
		b.state.DuplicateRetries = 0
		b.state.ProcessedCount++
	} else {
		b.recorder.Record(6, fmt.Sprintf("Image %s already seen, skipping", id), StatusWarning)
	}

	if b.page.Count(selNextItem) > 0 {
		if err := b.page.Click(selNextItem); err != nil {
			b.logger.Warn("next-item click failed", "error", err)
		}
	}
	if err := b.waitSeconds(1); err != nil {
		return resultFatal, err
	}
	return resultSkipItem, nil
}

// populateFields fills the title and description, generating or falling back
// when the portal left both empty.
func (b *Bot) populateFields(ctx context.Context, id string) (stepResult, error) {
	b.recorder.Record(7, "Filling in image details", StatusInfo)

	title, _ := b.page.InputValue(selTitle)
	desc, _ := b.page.InputValue(selDescription)
	title = strings.TrimSpace(title)
	desc = strings.TrimSpace(desc)

	if title == "" && desc == "" {
		res, genTitle, genDesc, err := b.resolveEmptyContent(ctx, id)
		if res != resultContinue || err != nil {
			return res, err
		}
		title, desc = genTitle, genDesc
	} else if title == "" {
		// The description stands in for the missing title. Deriving a title
		// from the image instead is opt-in.
		title = desc
		if b.opts.TitleFromImage.Enabled() && b.analyzer != nil && b.analyzer.Enabled() {
			if img, err := b.page.Screenshot(selScreenshotArea); err == nil {
				if generated := b.analyzer.AnalyzeTitle(ctx, img); generated != "" {
					title = generated
				}
			}
		}
	}

	title = content.SanitizeTitle(title)
	if err := b.page.SetFieldValueWithEvents(selTitle, title); err != nil {
		b.recorder.Record(7, "Could not set the title, skipping this image", StatusWarning)
		return resultSkipItem, nil
	}
	if err := b.waitScaled(1.5); err != nil {
		return resultFatal, err
	}

	if b.opts.ManualDescription != "" {
		desc = strings.TrimSpace(desc + " " + b.opts.ManualDescription)
	}
	if phrase := content.SampleTemplatePhrase(b.opts.Template); phrase != "" {
		desc = strings.TrimSpace(desc + phrase)
	}
	if desc != "" {
		if err := b.page.SetFieldValueWithEvents(selDescription, desc); err != nil {
			b.recorder.Record(7, "Could not set the description", StatusWarning)
		}
	}
	return resultContinue, nil
}

// resolveEmptyContent decides what to do with an item that has neither title
// nor description, per the configured policy.
func (b *Bot) resolveEmptyContent(ctx context.Context, id string) (stepResult, string, string, error) {
	policy := b.opts.OnEmptyContent
	if policy == EmptyDefault {
		if b.session.Name() == "interactive" {
			policy = EmptyRequireGeneration
		} else {
			policy = EmptyFallback
		}
	}

	if policy == EmptySkip {
		b.recorder.Record(7, "Image has no title or description, skipping", StatusInfo)
		return resultSkipItem, "", "", nil
	}

	if b.analyzer != nil && b.analyzer.Enabled() {
		img, err := b.page.Screenshot(selScreenshotArea)
		if err != nil {
			b.logger.Warn("image screenshot failed", "error", err)
		} else if r := b.analyzer.Analyze(ctx, img); r != nil {
			b.recorder.Record(7, "Generated a title and description from the image", StatusSuccess)
			return resultContinue, r.Title, r.Description, nil
		}
	}

	if policy == EmptyRequireGeneration {
		if b.opts.SameIDAction == DuplicateStop {
			b.recorder.Record(7, "Could not generate content for the image, stopping the run", StatusError)
			return resultFatal, "", "", fmt.Errorf("content generation failed for image %q", id)
		}
		b.recorder.Record(7, "Could not generate content, skipping this image", StatusWarning)
		return resultSkipItem, "", "", nil
	}

	fallbackTitle := "AI Generated Image"
	if id != "" {
		fallbackTitle += " " + id
	}
	b.recorder.Record(7, "Using generic placeholder content for the image", StatusWarning)
	return resultContinue, fallbackTitle, genericDescription, nil
}

// categorize applies the category, model release, and exclusivity choices.
// Individual misses are warnings; only a stop request aborts.
func (b *Bot) categorize() error {
	if b.opts.AIImage.Enabled() {
		if b.page.Count(selRemoveCategory) > 0 {
			if err := b.page.Click(selRemoveCategory); err == nil {
				if err := b.waitSeconds(1); err != nil {
					return err
				}
			}
		}
		if err := b.page.SelectOption(selCategory, categoryValue); err != nil {
			b.recorder.Record(7, "Could not assign the AI images category", StatusWarning)
		} else {
			// The subcategory list repopulates after the category commits.
			if err := b.waitScaled(4.5); err != nil {
				return err
			}
			if err := b.page.SelectOption(selSubcategory, subcategoryValue); err != nil {
				b.recorder.Record(7, "Could not assign the AI images subcategory", StatusWarning)
			} else if err := b.waitSeconds(1); err != nil {
				return err
			}
		}
	}

	if b.opts.ModelRelease.Enabled() {
		if err := b.page.Click(selModelReleaseTab); err != nil {
			b.recorder.Record(7, "Could not open the model release panel", StatusWarning)
		} else {
			if err := b.waitSeconds(1); err != nil {
				return err
			}
			if err := b.page.Click(selModelReleaseOpt); err != nil {
				b.recorder.Record(7, "Could not attach the model release", StatusWarning)
			}
			if err := b.waitSeconds(1); err != nil {
				return err
			}
		}
	}

	if b.opts.ExclusiveImage.Enabled() {
		if err := b.page.Click(selExclusiveToggle); err != nil {
			b.recorder.Record(7, "Could not mark the image exclusive", StatusWarning)
		} else {
			if err := b.waitSeconds(1); err != nil {
				return err
			}
			if b.page.Count(selExclusiveOK) > 0 {
				if err := b.page.Click(selExclusiveOK); err != nil {
					b.recorder.Record(7, "Could not confirm exclusivity", StatusWarning)
				}
			}
			if err := b.waitSeconds(1); err != nil {
				return err
			}
		}
	}
	return nil
}

// submitItem performs the final pre-submit safety checks and clicks submit.
// Items that blew the preparation deadline are deleted from the queue so a
// half-configured submission never goes out.
func (b *Bot) submitItem(openedAt time.Time) (stepResult, error) {
	b.recorder.Record(8, "Submitting the image", StatusInfo)

	if err := b.guard.ResolveChallenge(b.page, b.state.StopRequested); err != nil {
		return resultFatal, err
	}

	if time.Since(openedAt) > time.Duration(itemDeadlineSeconds)*b.unit {
		b.recorder.Record(8, "Image took too long to prepare, deleting it from the queue", StatusWarning)
		if b.page.Count(selDeleteItem) > 0 {
			if err := b.page.Click(selDeleteItem); err == nil {
				if err := b.waitSeconds(1); err != nil {
					return resultFatal, err
				}
				if b.page.Count(selExclusiveOK) > 0 {
					if err := b.page.Click(selExclusiveOK); err != nil {
						b.logger.Warn("delete confirmation click failed", "error", err)
					}
				}
			}
		}
		return resultSkipItem, nil
	}

	if b.page.Count(selSubmitButton) == 0 {
		b.recorder.Record(8, "Submit button not found, skipping this image", StatusError)
		return resultSkipItem, nil
	}
	if err := b.page.Click(selSubmitButton); err != nil {
		b.recorder.Record(8, fmt.Sprintf("Submit failed: %v", err), StatusError)
		return resultSkipItem, nil
	}
	if err := b.waitSeconds(3); err != nil {
		return resultFatal, err
	}

	b.state.ProcessedCount++
	b.state.SuccessCount++
	b.recorder.Record(8, fmt.Sprintf("Submitted image %d of %d", b.state.ProcessedCount, b.opts.RepeatCount), StatusSuccess)
	return resultContinue, nil
}

// pace idles between submissions like a human would. The longer every-N-images
// pause comes on top of the regular sampled delay, not instead of it.
func (b *Bot) pace() error {
	if b.state.ProcessedCount >= b.opts.RepeatCount {
		return nil
	}

	delay := content.SampleDelaySeconds(b.opts.Delay)
	b.logger.Debug("waiting before the next image", "seconds", delay)
	if err := b.waitSeconds(delay); err != nil {
		return err
	}

	if b.opts.PauseAfter > 0 && b.state.ProcessedCount%b.opts.PauseAfter == 0 {
		b.recorder.Record(6, fmt.Sprintf("Pausing for %d seconds after %d images", b.opts.PauseDuration, b.state.ProcessedCount), StatusInfo)
		return b.waitSeconds(b.opts.PauseDuration)
	}
	return nil
}

// waitScaled sleeps for a fractional number of scaled seconds.
func (b *Bot) waitScaled(seconds float64) error {
	return waitWithStop(time.Duration(seconds*float64(b.unit)), b.state)
}
