package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgStart = `
		Hallo! Schick mir ein oder mehrere Fotos von einem Artikel, den du verkaufen möchtest.

		Mehrere Fotos am besten als Album senden. Fotos von Dokumenten (z.B. Fahrzeugschein, Rechnung) werden erkannt und ihre Angaben in die Beschreibung übernommen.

		/kategorien zeigt die Hauptkategorien.`
	MsgUnexpectedErr  = `Unerwarteter Fehler: %s`
	MsgUnknownCommand = "Unbekannter Befehl. Schick mir ein Foto, um eine Anzeige zu erstellen."
)

// =============================================================================
// Intake messages
// =============================================================================

const (
	MsgAnalyzingOne         = "Analysiere Foto..."
	MsgAnalyzingMany        = "Analysiere %d Fotos..."
	MsgDownloadFailed       = "Die Fotos konnten nicht geladen werden. Bitte versuche es erneut."
	MsgAnalysisFailed       = "Keines der Fotos konnte analysiert werden. Bitte versuche es mit anderen Fotos."
	MsgSaveFailed           = "Die Anzeige konnte nicht gespeichert werden: %s"
	MsgChooseCategory       = "Die Kategorie konnte nicht bestimmt werden. Bitte wähle die Kategorie manuell aus."
	MsgChooseSubcategory    = "Bitte wähle die Unterkategorie manuell aus."
	MsgSomePhotosFailed     = "⚠️ %d von %d Fotos konnten nicht analysiert werden."
	MsgDocumentFactsApplied = "📄 Angaben aus %s übernommen."
	MsgPriceUnknown         = "unbekannt"
)

// MsgItemReady is the summary of a finished draft: title, description, price
// and category.
const MsgItemReady = `
	*%s*

	%s

	Preis: %s
	Kategorie: %s`

// =============================================================================
// Category messages
// =============================================================================

const (
	MsgCategoriesHeader  = "*Hauptkategorien:*\n"
	MsgNoCategories      = "Es sind noch keine Kategorien hinterlegt."
	MsgCategoriesFailed  = "Die Kategorien konnten nicht geladen werden."
	MsgCategoryNotChosen = "–"
)
