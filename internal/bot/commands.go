package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/i18n"
	"pricewatch/internal/match"
	"pricewatch/internal/model"
	"pricewatch/internal/source"
	"pricewatch/internal/storage"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

const (
	cmdAddChannel    = "/add_channel"
	cmdRemoveChannel = "/remove_channel"
	cmdWatch         = "/watch"
	cmdUnwatch       = "/unwatch"
	cmdHistory       = "/history"
)

const dateLayout = "2006-01-02 15:04"

func (b *Bot) commandTable() map[string]Command {
	cmds := []Command{
		{Name: "start", Handle: b.cmdStart},
		{Name: "add_channel", Handle: b.cmdAddChannel, Timeout: 2 * time.Minute},
		{Name: "list_channels", Handle: b.cmdListChannels},
		{Name: "remove_channel", Handle: b.cmdRemoveChannel},
		{Name: "watch", Handle: b.cmdWatch},
		{Name: "list_products", Handle: b.cmdListProducts},
		{Name: "unwatch", Handle: b.cmdUnwatch},
		{Name: "history", Handle: b.cmdHistory},
		{Name: "pause", Handle: b.cmdPause},
		{Name: "resume", Handle: b.cmdResume},
		{Name: "stats", Handle: b.cmdStats},
		{Name: "list_categories", Handle: b.cmdListCategories},
		{Name: "cancel", Handle: b.cmdCancel},
		{Name: "skip", Handle: b.cmdSkip},
	}
	m := make(map[string]Command, len(cmds)+2)
	for _, c := range cmds {
		m[c.Name] = c
	}
	m["annulla"] = m["cancel"]
	m["salta"] = m["skip"]
	return m
}

// Commands lists the public command names, sorted.
func (b *Bot) Commands() []string {
	out := make([]string, 0, len(b.commands))
	for name := range b.commands {
		if name == "annulla" || name == "salta" {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	name := req.Msg.FromUsername
	if name == "" {
		name = strconv.FormatInt(req.OwnerID, 10)
	}
	req.Logger.Info("start")
	b.reply(ctx, req, b.tr.T(i18n.Welcome, req.Lang, name))
	return nil
}

func (b *Bot) cmdCancel(ctx context.Context, req *Request) error {
	b.reply(ctx, req, b.tr.T(i18n.OperationCancelled, req.Lang))
	return nil
}

// cmdSkip only means something inside a conversation.
func (b *Bot) cmdSkip(context.Context, *Request) error { return nil }

func (b *Bot) cmdPause(ctx context.Context, req *Request) error {
	if err := b.store.SetPaused(ctx, req.OwnerID, true); err != nil {
		return err
	}
	req.Logger.Info("notifications paused")
	b.reply(ctx, req, b.tr.T(i18n.Paused, req.Lang))
	return nil
}

func (b *Bot) cmdResume(ctx context.Context, req *Request) error {
	if err := b.store.SetPaused(ctx, req.OwnerID, false); err != nil {
		return err
	}
	req.Logger.Info("notifications resumed")
	b.reply(ctx, req, b.tr.T(i18n.Resumed, req.Lang))
	return nil
}

// ---- channels ----

func (b *Bot) cmdAddChannel(ctx context.Context, req *Request) error {
	if len(req.Args) > 0 {
		return b.addChannel(ctx, req, strings.Join(req.Args, " "))
	}
	b.open(req, cmdAddChannel, stepChannel)
	b.reply(ctx, req, b.tr.T(i18n.AddChannelPrompt, req.Lang))
	return nil
}

func (b *Bot) addChannel(ctx context.Context, req *Request, input string) error {
	ident, err := ParseChannel(input)
	switch {
	case errors.Is(err, errInviteLink):
		b.reply(ctx, req, b.tr.T(i18n.InviteUnsupported, req.Lang))
		return nil
	case err != nil:
		b.reply(ctx, req, b.tr.T(i18n.InvalidChannelID, req.Lang))
		return nil
	}

	req.Logger.Info("add channel", logx.String("identifier", ident))
	src, err := b.joiner.Join(ctx, ident)
	if err != nil {
		if errors.Is(err, source.ErrSourceNotFound) {
			b.reply(ctx, req, b.tr.T(i18n.ChannelNotFound, req.Lang))
			return nil
		}
		if wait, ok := kit.RetryAfter(err); ok {
			b.reply(ctx, req, b.tr.T(i18n.ChannelRateLimited, req.Lang, wait.Round(time.Second).String()))
			return nil
		}
		return fmt.Errorf("join %s: %w", ident, err)
	}
	if err := b.store.AddMembership(ctx, model.Membership{OwnerID: req.OwnerID, SourceID: src.ID}); err != nil {
		return err
	}
	b.reply(ctx, req, b.tr.T(i18n.JoinChannelOK, req.Lang, src.Label()))
	b.reply(ctx, req, b.tr.T(i18n.ScanningMessages, req.Lang))

	b.spawn(ctx, "bot.backfill."+req.ReqID, func(c context.Context) {
		n, err := b.backfill.Backfill(c, src.Identifier, req.OwnerID, b.cfg.BackfillLimit)
		switch {
		case errors.Is(err, source.ErrSourceNotFound):
			b.send(c, req.Chat, b.tr.T(i18n.ChannelNotFound, req.Lang), req.Logger)
		case errors.Is(err, context.Canceled):
			req.Logger.Info("backfill interrupted by shutdown", logx.String("source", src.Identifier), logx.Int("matches", n))
		case err != nil:
			req.Logger.Warn("backfill failed", logx.String("source", src.Identifier), logx.Int("matches", n), logx.Err(err))
			b.send(c, req.Chat, b.tr.T(i18n.GenericError, req.Lang), req.Logger)
		case n > 0:
			b.send(c, req.Chat, b.tr.T(i18n.BackfillMatches, req.Lang, b.tr.Number(req.Lang, n)), req.Logger)
		default:
			b.send(c, req.Chat, b.tr.T(i18n.BackfillNoMatches, req.Lang), req.Logger)
		}
	})
	return nil
}

func (b *Bot) cmdListChannels(ctx context.Context, req *Request) error {
	sources, err := b.store.SourcesForOwner(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		b.reply(ctx, req, b.tr.T(i18n.NoChannels, req.Lang))
		return nil
	}
	lines := make([]string, len(sources))
	for i, s := range sources {
		lines[i] = "- " + s.Label()
	}
	b.reply(ctx, req, b.tr.T(i18n.YourChannels, req.Lang, strings.Join(lines, "\n")))
	return nil
}

func (b *Bot) cmdRemoveChannel(ctx context.Context, req *Request) error {
	sources, err := b.store.SourcesForOwner(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		b.reply(ctx, req, b.tr.T(i18n.NoChannels, req.Lang))
		return nil
	}
	conv := b.open(req, cmdRemoveChannel, stepChoice)
	conv.sources = sources
	labels := make([]string, len(sources))
	for i, s := range sources {
		labels[i] = s.Label()
	}
	b.reply(ctx, req, b.tr.T(i18n.LeavePrompt, req.Lang, numbered(labels)))
	return nil
}

func (b *Bot) removeChannel(ctx context.Context, req *Request, src model.Source) error {
	req.Logger.Info("remove channel", logx.String("identifier", src.Identifier))
	err := b.store.RemoveMembership(ctx, model.Membership{OwnerID: req.OwnerID, SourceID: src.ID})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		req.Logger.Warn("remove membership failed", logx.Err(err))
		b.reply(ctx, req, b.tr.T(i18n.LeaveChannelFailed, req.Lang))
		return nil
	}
	b.reply(ctx, req, b.tr.T(i18n.LeaveChannelOK, req.Lang, src.Label()))
	return nil
}

// ---- watches ----

func (b *Bot) cmdWatch(ctx context.Context, req *Request) error {
	conv := b.open(req, cmdWatch, stepProduct)
	if len(req.Args) > 0 {
		return b.watchProduct(ctx, req, conv, strings.Join(req.Args, " "))
	}
	b.reply(ctx, req, b.tr.T(i18n.WatchAskProduct, req.Lang))
	return nil
}

func (b *Bot) watchProduct(ctx context.Context, req *Request, conv *conversation, product string) error {
	product = strings.TrimSpace(product)
	norm := match.Normalize(product)
	if norm == "" || isSkip(product) {
		b.advance(conv, stepProduct)
		b.reply(ctx, req, b.tr.T(i18n.WatchAskProduct, req.Lang))
		return nil
	}
	watches, err := b.store.WatchesForOwner(ctx, req.OwnerID)
	if err != nil {
		b.convs.end(req.OwnerID, conv)
		return err
	}
	for _, w := range watches {
		if match.Normalize(w.Name) == norm {
			b.convs.end(req.OwnerID, conv)
			b.reply(ctx, req, b.tr.T(i18n.WatchDuplicate, req.Lang, product))
			return nil
		}
	}
	conv.product = product
	b.advance(conv, stepPrice)
	b.reply(ctx, req, b.tr.T(i18n.WatchAskPrice, req.Lang))
	return nil
}

func (b *Bot) watchPrice(ctx context.Context, req *Request, conv *conversation, text string) error {
	if !isSkip(text) {
		p, ok := ParsePrice(text)
		if !ok {
			b.convs.end(req.OwnerID, conv)
			b.reply(ctx, req, b.tr.T(i18n.WatchBadPrice, req.Lang))
			return nil
		}
		conv.target = &p
	}
	b.advance(conv, stepCategory)
	b.reply(ctx, req, b.tr.T(i18n.WatchAskCat, req.Lang))
	return nil
}

func (b *Bot) watchCategory(ctx context.Context, req *Request, conv *conversation, text string) error {
	if !isSkip(text) && text != "" {
		c := strings.ToLower(text)
		conv.category = &c
	}
	if conv.target == nil {
		suggested, err := b.store.MinPriceForName(ctx, strings.ToLower(conv.product))
		if err != nil {
			req.Logger.Warn("price suggestion failed", logx.Err(err))
		}
		if suggested != nil {
			conv.suggested = suggested
			b.advance(conv, stepConfirm)
			b.reply(ctx, req, b.tr.T(i18n.WatchSuggest, req.Lang, conv.product, b.tr.Price(req.Lang, *suggested)))
			return nil
		}
	}
	return b.finishWatch(ctx, req, conv, conv.target)
}

func (b *Bot) watchConfirm(ctx context.Context, req *Request, conv *conversation, text string) error {
	var target *decimal.Decimal
	answer := strings.ToLower(text)
	switch {
	case confirmWords[answer]:
		target = conv.suggested
	case isSkip(answer) || answer == "no":
	default:
		if p, ok := ParsePrice(answer); ok {
			target = &p
		}
	}
	return b.finishWatch(ctx, req, conv, target)
}

func (b *Bot) finishWatch(ctx context.Context, req *Request, conv *conversation, target *decimal.Decimal) error {
	b.convs.end(req.OwnerID, conv)
	text, err := b.createWatch(ctx, req.OwnerID, conv, target)
	if err != nil {
		return err
	}
	b.reply(ctx, req, text)
	return nil
}

// createWatch stores the draft and returns the confirmation text.
func (b *Bot) createWatch(ctx context.Context, ownerID int64, conv *conversation, target *decimal.Decimal) (string, error) {
	lang := conv.lang
	_, err := b.store.AddWatch(ctx, model.Watch{
		OwnerID:     ownerID,
		Name:        conv.product,
		TargetPrice: target,
		Category:    conv.category,
		AddedAt:     b.now(),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return b.tr.T(i18n.WatchDuplicate, lang, conv.product), nil
	}
	if err != nil {
		return "", err
	}
	b.log.Info("watch added",
		logx.Int64("owner_id", ownerID),
		logx.String("product", conv.product),
		logx.Bool("has_target", target != nil),
	)
	priceInfo, catInfo := "", ""
	if target != nil {
		priceInfo = b.tr.T(i18n.WatchPriceInfo, lang, b.tr.Price(lang, *target))
	}
	if conv.category != nil {
		catInfo = b.tr.T(i18n.WatchCatInfo, lang, *conv.category)
	}
	return b.tr.T(i18n.WatchActive, lang, conv.product, priceInfo, catInfo), nil
}

func (b *Bot) cmdListProducts(ctx context.Context, req *Request) error {
	watches, err := b.store.WatchesForOwner(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		b.reply(ctx, req, b.tr.T(i18n.NoProducts, req.Lang))
		return nil
	}
	b.reply(ctx, req, b.tr.T(i18n.YourProducts, req.Lang, numbered(b.watchLabels(req.Lang, watches))))
	return nil
}

func (b *Bot) cmdUnwatch(ctx context.Context, req *Request) error {
	watches, err := b.store.WatchesForOwner(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		b.reply(ctx, req, b.tr.T(i18n.NoProductsShort, req.Lang))
		return nil
	}
	conv := b.open(req, cmdUnwatch, stepChoice)
	conv.watches = watches
	b.reply(ctx, req, b.tr.T(i18n.UnwatchPrompt, req.Lang, numbered(b.watchLabels(req.Lang, watches))))
	return nil
}

func (b *Bot) unwatch(ctx context.Context, req *Request, w model.Watch) error {
	req.Logger.Info("unwatch", logx.String("product", w.Name))
	if err := b.store.DeleteWatch(ctx, req.OwnerID, w.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	b.reply(ctx, req, b.tr.T(i18n.Unwatched, req.Lang, w.Name))
	return nil
}

func (b *Bot) watchLabels(lang string, watches []model.Watch) []string {
	out := make([]string, len(watches))
	for i, w := range watches {
		out[i] = w.Name
		if w.TargetPrice != nil {
			out[i] += b.tr.T(i18n.WatchPriceInfo, lang, b.tr.Price(lang, *w.TargetPrice))
		}
	}
	return out
}

// ---- history & stats ----

func (b *Bot) cmdHistory(ctx context.Context, req *Request) error {
	watches, err := b.store.WatchesForOwner(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	switch len(watches) {
	case 0:
		b.reply(ctx, req, b.tr.T(i18n.NoProductsShort, req.Lang))
		return nil
	case 1:
		return b.history(ctx, req, watches[0])
	}
	conv := b.open(req, cmdHistory, stepChoice)
	conv.watches = watches
	names := make([]string, len(watches))
	for i, w := range watches {
		names[i] = w.Name
	}
	b.reply(ctx, req, b.tr.T(i18n.HistoryPrompt, req.Lang, numbered(names)))
	return nil
}

func (b *Bot) history(ctx context.Context, req *Request, w model.Watch) error {
	recs, err := b.store.MatchesForWatch(ctx, w.ID, historyLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		b.reply(ctx, req, b.tr.T(i18n.HistoryEmpty, req.Lang, w.Name))
		return nil
	}
	lines := make([]string, 0, len(recs)+1)
	lines = append(lines, b.tr.T(i18n.HistoryHeader, req.Lang, w.Name, b.tr.Number(req.Lang, len(recs))))
	for _, r := range recs {
		price := b.tr.T(i18n.NotAvailable, req.Lang)
		if r.Price != nil {
			price = b.tr.Price(req.Lang, *r.Price)
		}
		line := fmt.Sprintf("  %s | %s | %s", r.FoundAt.In(b.cfg.Location).Format(dateLayout), price, r.SourceName)
		if r.Link != nil {
			line += " | " + *r.Link
		}
		lines = append(lines, line)
	}
	b.reply(ctx, req, strings.Join(lines, "\n"))
	return nil
}

func (b *Bot) cmdStats(ctx context.Context, req *Request) error {
	st, err := b.store.OwnerStats(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	lang := req.Lang
	lines := []string{
		b.tr.T(i18n.StatsHeader, lang),
		b.tr.T(i18n.StatsProducts, lang, b.tr.Number(lang, st.Watches)),
		b.tr.T(i18n.StatsChannels, lang, b.tr.Number(lang, st.Sources)),
		b.tr.T(i18n.StatsMatches, lang, b.tr.Number(lang, st.Matches)),
	}
	if st.Matches > 0 {
		if st.TopProduct != "" {
			lines = append(lines, b.tr.T(i18n.StatsTopProduct, lang, st.TopProduct, b.tr.Number(lang, st.TopProductHits)))
		}
		if st.TopSource != "" {
			lines = append(lines, b.tr.T(i18n.StatsTopChannel, lang, st.TopSource, b.tr.Number(lang, st.TopSourceHits)))
		}
		if !st.LastMatchAt.IsZero() {
			lines = append(lines, b.tr.T(i18n.StatsLastMatch, lang, st.LastMatchAt.In(b.cfg.Location).Format(dateLayout)))
		}
	}
	b.reply(ctx, req, strings.Join(lines, "\n"))
	return nil
}

func (b *Bot) cmdListCategories(ctx context.Context, req *Request) error {
	watches, err := b.store.WatchesForOwner(ctx, req.OwnerID)
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		b.reply(ctx, req, b.tr.T(i18n.NoProductsShort, req.Lang))
		return nil
	}
	byCat := make(map[string][]string)
	for _, w := range watches {
		cat := b.tr.T(i18n.Uncategorized, req.Lang)
		if w.Category != nil && *w.Category != "" {
			cat = *w.Category
		}
		byCat[cat] = append(byCat[cat], w.Name)
	}
	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	lines := []string{b.tr.T(i18n.CategoriesHeader, req.Lang)}
	for _, c := range cats {
		lines = append(lines, "\n"+c+":")
		for _, name := range byCat[c] {
			lines = append(lines, "  - "+name)
		}
	}
	b.reply(ctx, req, strings.Join(lines, "\n"))
	return nil
}

// ---- conversation replies ----

func (b *Bot) continueConversation(ctx context.Context, req *Request, conv *conversation) error {
	text := strings.TrimSpace(req.Msg.Text)
	if isCancel(text) {
		b.convs.end(req.OwnerID, conv)
		b.reply(ctx, req, b.tr.T(i18n.OperationCancelled, req.Lang))
		return nil
	}

	switch conv.step {
	case stepChannel:
		b.convs.end(req.OwnerID, conv)
		return b.addChannel(ctx, req, text)
	case stepChoice:
		idx, ok := b.choice(ctx, req, conv, text)
		if !ok {
			return nil
		}
		switch conv.command {
		case cmdRemoveChannel:
			return b.removeChannel(ctx, req, conv.sources[idx])
		case cmdUnwatch:
			return b.unwatch(ctx, req, conv.watches[idx])
		case cmdHistory:
			return b.history(ctx, req, conv.watches[idx])
		}
		return nil
	case stepProduct:
		return b.watchProduct(ctx, req, conv, text)
	case stepPrice:
		return b.watchPrice(ctx, req, conv, text)
	case stepCategory:
		return b.watchCategory(ctx, req, conv, text)
	case stepConfirm:
		return b.watchConfirm(ctx, req, conv, text)
	default:
		b.convs.end(req.OwnerID, conv)
		return nil
	}
}

// choice parses a 1-based selection and always ends the conversation.
func (b *Bot) choice(ctx context.Context, req *Request, conv *conversation, text string) (int, bool) {
	b.convs.end(req.OwnerID, conv)
	n := len(conv.sources)
	if conv.command != cmdRemoveChannel {
		n = len(conv.watches)
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		b.reply(ctx, req, b.tr.T(i18n.InvalidChoice, req.Lang, conv.command))
		return 0, false
	}
	if v < 1 || v > n {
		b.reply(ctx, req, b.tr.T(i18n.NumberOutOfRange, req.Lang, conv.command))
		return 0, false
	}
	return v - 1, true
}

func numbered(items []string) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(it)
	}
	return sb.String()
}
