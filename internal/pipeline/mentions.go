package pipeline

import (
	"context"
	"regexp"
	"strconv"
)

var mentionRegexp = regexp.MustCompile(`<@(\d+)>`)

// mentionedIDs extracts the distinct account ids referenced by <@id> markers,
// in order of first appearance.
func mentionedIDs(content string) []int64 {
	var ids []int64
	seen := map[int64]struct{}{}
	for _, match := range mentionRegexp.FindAllStringSubmatch(content, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// countMentions bumps the mention counter of every member the message calls
// out. Self-mentions and ids outside the guild don't count.
func (p *Pipeline) countMentions(ctx context.Context, guildID int64, channelID int64, authorID int64, content string) {
	for _, mentioned := range mentionedIDs(content) {
		if mentioned == authorID {
			continue
		}
		isMember, err := p.store.IsMember(ctx, guildID, mentioned)
		if err != nil {
			p.sugar.Error(err)
			continue
		}
		if !isMember {
			continue
		}
		if err := p.store.IncrementMentionCount(ctx, mentioned, channelID); err != nil {
			p.sugar.Error(err)
		}
	}
}
