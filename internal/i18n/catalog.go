package i18n

var catalogs = map[string]map[string]string{
	"en": {
		NotAuthorized:      "You are not authorized to use this bot.",
		StartFirst:         "Please start the bot first with /start in a private chat.",
		OperationCancelled: "Operation cancelled.",
		TimedOut:           "Timed out. Try again with {0}.",
		InvalidChoice:      "Invalid choice. Try again with {0}.",
		NumberOutOfRange:   "Number out of range. Try again with {0}.",
		GenericError:       "Something went wrong, please try again later.",

		Welcome: "Hi {0}, welcome! Use /add_channel to add a channel to monitor.",

		AddChannelPrompt:   "Send the channel username (e.g. @deals_tech) or its numeric id. Type /cancel to abort.",
		InviteUnsupported:  "Invite links are not supported: add the bot to the channel, then send its username or id.",
		InvalidChannelID:   "Invalid channel identifier. Use only letters, numbers and underscores (e.g. deals_tech).",
		ChannelNotFound:    "Channel not found. Make sure the bot is a member of it.",
		ChannelRateLimited: "Telegram is rate limiting us, retry in {0}.",
		ScanningMessages:   "Scanning existing messages...",
		BackfillMatches:    "Backfill complete: {0} matches found!",
		BackfillNoMatches:  "Backfill complete: no matches found.",
		JoinChannelOK:      "Joined channel: {0}",
		LeaveChannelOK:     "Left channel: {0}",
		LeaveChannelFailed: "Error leaving channel. Please try again later.",
		LeavePrompt:        "Which channel do you want to remove? Enter the number:\n{0}\n\n/cancel to abort",

		NoChannels:   "You have no channels added.",
		YourChannels: "Your channels:\n{0}",

		WatchAskProduct: "What product do you want to monitor? (type /cancel to abort)",
		WatchAskPrice:   "At what price do you want to be notified?\nEnter a price (e.g. 799) or /skip to be notified at any price.",
		WatchBadPrice:   "Invalid price. Try again with /watch.",
		WatchAskCat:     "Category? (e.g. electronics, clothing, home)\nType /skip to skip.",
		WatchDuplicate:  "You are already monitoring '{0}'.",
		WatchSuggest:    "From history, the lowest price found for '{0}' is {1}.\nReply 'yes' to use it as target price, enter a different price, or /skip.",
		WatchActive:     "Monitoring active: '{0}'{1}{2}",
		WatchPriceInfo:  " (target: {0})",
		WatchCatInfo:    " [{0}]",

		NoProducts:      "You are not monitoring any products. Use /watch to start.",
		NoProductsShort: "You are not monitoring any products.",
		YourProducts:    "Your monitored products:\n{0}",

		UnwatchPrompt: "Which product do you want to remove? Enter the number:\n{0}\n\n/cancel to abort",
		Unwatched:     "Removed: '{0}'",

		HistoryPrompt: "Which product do you want to see history for?\n{0}\n\n/cancel to abort",
		HistoryEmpty:  "No matches found for '{0}'.",
		HistoryHeader: "History for '{0}' (last {1} matches):",

		Paused:  "Notifications paused. Use /resume to reactivate.",
		Resumed: "Notifications reactivated!",

		StatsHeader:     "Your stats:",
		StatsProducts:   "  Monitored products: {0}",
		StatsChannels:   "  Channels: {0}",
		StatsMatches:    "  Total matches: {0}",
		StatsTopProduct: "  Top product: {0} ({1} matches)",
		StatsTopChannel: "  Top channel: {0} ({1} matches)",
		StatsLastMatch:  "  Last match: {0}",

		CategoriesHeader: "Products by category:",
		Uncategorized:    "Uncategorized",

		NotifyMatch:             "'{0}' found in {1}!\n{2}{3}{4}",
		NotifyPriceLine:         "Price found: {0} (target: {1})\n\n",
		NotifyLinkLine:          "\n\nGo to message: {0}",
		NotifyBackfillMatch:     "[Backfill] '{0}' found in {1}!\n{2}{3}{4}",
		NotifyBackfillPriceLine: "{0} (target: {1})\n\n",

		SummaryHeader:  "Daily summary ({0} matches):",
		SummaryProduct: "\n{0} ({1} matches):",
		SummaryItem:    "  {0} in {1}",
		SummaryMore:    "  ... and {0} more",
		NotAvailable:   "N/A",
	},
	"it": {
		NotAuthorized:      "Non sei autorizzato ad usare questo bot.",
		StartFirst:         "Avvia prima il bot con /start in una chat privata.",
		OperationCancelled: "Operazione annullata.",
		TimedOut:           "Tempo scaduto. Riprova con {0}.",
		InvalidChoice:      "Scelta non valida. Riprova con {0}.",
		NumberOutOfRange:   "Numero fuori intervallo. Riprova con {0}.",
		GenericError:       "Qualcosa è andato storto, riprova più tardi.",

		Welcome: "Ciao {0}, benvenuto! Usa /add_channel per aggiungere un canale da monitorare.",

		AddChannelPrompt:   "Invia il nome utente del canale (es. @offerte_tech) o il suo id numerico. Scrivi /annulla per annullare.",
		InviteUnsupported:  "I link di invito non sono supportati: aggiungi il bot al canale e invia il suo nome utente o id.",
		InvalidChannelID:   "Identificativo canale non valido. Usa solo lettere, numeri e underscore (es. offerte_tech).",
		ChannelNotFound:    "Canale non trovato. Assicurati che il bot ne faccia parte.",
		ChannelRateLimited: "Telegram ci sta limitando, riprova tra {0}.",
		ScanningMessages:   "Scansione messaggi esistenti...",
		BackfillMatches:    "Scansione completata: {0} corrispondenze trovate!",
		BackfillNoMatches:  "Scansione completata: nessuna corrispondenza trovata.",
		JoinChannelOK:      "Canale aggiunto: {0}",
		LeaveChannelOK:     "Canale abbandonato: {0}",
		LeaveChannelFailed: "Errore nell'abbandonare il canale. Riprova più tardi.",
		LeavePrompt:        "Quale canale vuoi rimuovere? Inserisci il numero:\n{0}\n\n/annulla per annullare",

		NoChannels:   "Non hai canali aggiunti.",
		YourChannels: "I tuoi canali:\n{0}",

		WatchAskProduct: "Quale prodotto vuoi monitorare? (scrivi /annulla per annullare)",
		WatchAskPrice:   "A quale prezzo vuoi essere notificato?\nInserisci un prezzo (es. 799) o /salta per essere notificato a qualsiasi prezzo.",
		WatchBadPrice:   "Prezzo non valido. Riprova con /watch.",
		WatchAskCat:     "Categoria? (es. elettronica, abbigliamento, casa)\nScrivi /salta per saltare.",
		WatchDuplicate:  "Stai già monitorando '{0}'.",
		WatchSuggest:    "Dallo storico, il prezzo più basso trovato per '{0}' è {1}.\nRispondi 'sì' per usarlo come prezzo obiettivo, inserisci un prezzo diverso o /salta.",
		WatchActive:     "Monitoraggio attivo: '{0}'{1}{2}",
		WatchPriceInfo:  " (obiettivo: {0})",
		WatchCatInfo:    " [{0}]",

		NoProducts:      "Non stai monitorando nessun prodotto. Usa /watch per iniziare.",
		NoProductsShort: "Non stai monitorando nessun prodotto.",
		YourProducts:    "I tuoi prodotti monitorati:\n{0}",

		UnwatchPrompt: "Quale prodotto vuoi rimuovere? Inserisci il numero:\n{0}\n\n/annulla per annullare",
		Unwatched:     "Rimosso: '{0}'",

		HistoryPrompt: "Di quale prodotto vuoi vedere lo storico?\n{0}\n\n/annulla per annullare",
		HistoryEmpty:  "Nessuna corrispondenza trovata per '{0}'.",
		HistoryHeader: "Storico per '{0}' (ultime {1} corrispondenze):",

		Paused:  "Notifiche in pausa. Usa /resume per riattivare.",
		Resumed: "Notifiche riattivate!",

		StatsHeader:     "Le tue statistiche:",
		StatsProducts:   "  Prodotti monitorati: {0}",
		StatsChannels:   "  Canali: {0}",
		StatsMatches:    "  Corrispondenze totali: {0}",
		StatsTopProduct: "  Prodotto top: {0} ({1} corrispondenze)",
		StatsTopChannel: "  Canale top: {0} ({1} corrispondenze)",
		StatsLastMatch:  "  Ultima corrispondenza: {0}",

		CategoriesHeader: "Prodotti per categoria:",
		Uncategorized:    "Senza categoria",

		NotifyMatch:             "'{0}' trovato in {1}!\n{2}{3}{4}",
		NotifyPriceLine:         "Prezzo trovato: {0} (obiettivo: {1})\n\n",
		NotifyLinkLine:          "\n\nVai al messaggio: {0}",
		NotifyBackfillMatch:     "[Scansione] '{0}' trovato in {1}!\n{2}{3}{4}",
		NotifyBackfillPriceLine: "{0} (obiettivo: {1})\n\n",

		SummaryHeader:  "Riepilogo giornaliero ({0} corrispondenze):",
		SummaryProduct: "\n{0} ({1} corrispondenze):",
		SummaryItem:    "  {0} su {1}",
		SummaryMore:    "  ... e altre {0}",
		NotAvailable:   "N/D",
	},
}
