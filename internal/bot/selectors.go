package bot

// Portal entry points.
const (
	BaseURL   = "https://www.dreamstime.com"
	LoginURL  = BaseURL + "/login"
	UploadURL = BaseURL + "/upload"
)

// Login flow selectors.
const (
	selSignInTrigger = "a.h-login__btn--sign-in.js-loginform-trigger"
	selUsername      = "input.js-login-uname[name='uname']"
	selPassword      = "input.js-login-pass[name='pass']"
	selLoginSubmit   = "button[type='submit'], input[type='submit']"
)

// Upload queue selectors.
const (
	selUploadButton = "a.upload-btn.upload-btn--big.upload-btn--green"
	selUploadCount  = "a#js-upload span"
	selReadyItem    = "div.js-readyToSubmit"
	selEditLink     = "div.js-readyToSubmit a.js-upload-edit"
)

// Submission form selectors.
const (
	selItemID          = "#js-originalfilename"
	selNextItem        = "#js-next-submit"
	selTitle           = "input#title"
	selDescription     = "textarea#description"
	selRemoveCategory  = "#js-remove-cat3 > i"
	selCategory        = "#M_Category_3"
	selSubcategory     = "#M_Subcategory_3"
	selModelReleaseTab = "#js-mr-href"
	selModelReleaseOpt = "#js-mr-list > div.popup-release__list > div > div > div > label"
	selExclusiveToggle = "#js-exclusively > div > label"
	selExclusiveOK     = "button.btn.button.green.js-confirm"
	selSubmitButton    = "a#submitbutton"
	selDeleteItem      = "a.js-delete-submit"
	selScreenshotArea  = ".upload-item.submit"
)

// Fixed category assignment for AI generated images.
const (
	categoryValue    = "172"
	subcategoryValue = "212"
)
