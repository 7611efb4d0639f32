package forum

import (
	"context"
	"net/url"
)

type categoriesReply struct {
	CategoryList struct {
		Categories []struct {
			Category
			SubcategoryList []Category `json:"subcategory_list"`
		} `json:"categories"`
	} `json:"category_list"`
}

// Categories returns all categories with subcategories flattened after their
// parent.
func (f *Forum) Categories(ctx context.Context) ([]Category, error) {
	var reply categoriesReply
	q := url.Values{"include_subcategories": {"true"}}
	if err := f.getJSON(ctx, "/categories.json", q, &reply); err != nil {
		return nil, err
	}

	var out []Category
	for _, c := range reply.CategoryList.Categories {
		parent := c.Category
		parent.ParentCategoryID = 0
		out = append(out, parent)
		for _, sub := range c.SubcategoryList {
			sub.ParentCategoryID = parent.ID
			out = append(out, sub)
		}
	}
	return out, nil
}

// CategoryMap returns category names by ID. The map is fetched once and kept
// until ClearCategoryCache.
func (f *Forum) CategoryMap(ctx context.Context) (CategoryMap, error) {
	f.catMu.Lock()
	defer f.catMu.Unlock()
	if f.categories != nil {
		return f.categories, nil
	}

	cats, err := f.Categories(ctx)
	if err != nil {
		return nil, err
	}
	m := make(CategoryMap, len(cats))
	for _, c := range cats {
		m[c.ID] = c.Name
	}
	f.categories = m
	return m, nil
}

// ClearCategoryCache forgets the cached category map.
func (f *Forum) ClearCategoryCache() {
	f.catMu.Lock()
	f.categories = nil
	f.catMu.Unlock()
}

// categoryNames is best-effort: a failure leaves names empty.
func (f *Forum) categoryNames(ctx context.Context) CategoryMap {
	m, err := f.CategoryMap(ctx)
	if err != nil {
		f.logger.Debug().Err(err).Msg("Category map unavailable, skipping enrichment")
		return nil
	}
	return m
}

func (f *Forum) enrichTopics(ctx context.Context, topics []TopicSummary) {
	if len(topics) == 0 {
		return
	}
	names := f.categoryNames(ctx)
	for i := range topics {
		if topics[i].CategoryName == "" {
			topics[i].CategoryName = names.Name(topics[i].CategoryID)
		}
	}
}

func (f *Forum) enrichSearchTopics(ctx context.Context, topics []SearchTopic) {
	if len(topics) == 0 {
		return
	}
	names := f.categoryNames(ctx)
	for i := range topics {
		if topics[i].CategoryName == "" {
			topics[i].CategoryName = names.Name(topics[i].CategoryID)
		}
	}
}
