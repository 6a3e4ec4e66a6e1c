package portal

import (
	"fmt"
	"strings"

	"dre-etl/internal/browser"
)

// These couple the engine to the portal's current markup, locator drift is fixed here.

const PortalURL = "https://dre.pt/"

// consolidatedMarker appears in the href of consolidated-legislation results, which must never be
// picked as the search result, the consolidated text is reached from the diploma page instead.
const consolidatedMarker = "legislacao-consolidada"

var (
	searchInputLoc      = browser.CSS("#b2-b2-Input_ActiveItem")
	diplomaContainerLoc = browser.CSS("#b6-b5-InjectHTMLWrapper")

	consolidatedVersionLoc = browser.XPath(`//button[@title='Consultar versão consolidada']`)
	fullTextToggleLoc      = browser.XPath(`//span[text()='TEXTO COMPLETO']`)
	dateInputLoc           = browser.XPath(`//input[@id='Input_Date']`)
	filterButtonLoc        = browser.XPath(`//button[@id='FiltrarButton']`)
	activeFilterLoc        = browser.CSS(".active")
	consolidatedContentLoc = browser.XPath(`//div[@data-block='LegislacaoConsolidada.DiplomaCompleto']`)
)

// LinkPattern derives the href fragment identifying a diploma in the search results,
// ex. "Decreto-Lei n.º 10/2024" -> "decreto-lei/10-2024".
func LinkPattern(code string) string {
	tokens := strings.Fields(strings.ReplaceAll(strings.ToLower(code), "/", "-"))
	if len(tokens) == 0 {
		return ""
	}
	return fmt.Sprintf("%s/%s", tokens[0], tokens[len(tokens)-1])
}

// resultLinkLoc matches the first search result pointing at the diploma itself.
func resultLinkLoc(code string) browser.Locator {
	return browser.XPath(fmt.Sprintf(
		"//a[contains(@href, '%s') and not(contains(@href, '%s'))]",
		LinkPattern(code),
		consolidatedMarker,
	))
}
