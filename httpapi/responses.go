package httpapi

import "github.com/poiesic/curata/core"

type itemResponse struct {
	ID         uint64  `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	ImageURL   string  `json:"image_url,omitempty"`
	Price      float32 `json:"price"`
	Popularity float32 `json:"popularity"`
}

type scoredItemResponse struct {
	ID         uint64        `json:"id"`
	Score      float32       `json:"score"`
	Similarity float32       `json:"similarity"`
	Popularity float32       `json:"popularity"`
	Item       *itemResponse `json:"item,omitempty"`
}

type rankedResponse struct {
	Items      []scoredItemResponse `json:"items"`
	Filtered   int                  `json:"filtered"`
	Candidates int                  `json:"candidates"`
}

func newItemResponse(item *core.Item) *itemResponse {
	if item == nil {
		return nil
	}
	return &itemResponse{
		ID:         uint64(item.Id),
		Title:      item.Title,
		Category:   item.Category.String(),
		ImageURL:   item.ImageURL,
		Price:      item.Price,
		Popularity: item.Popularity,
	}
}

func newRankedResponse(result *core.RankedResult) rankedResponse {
	resp := rankedResponse{
		Items:      make([]scoredItemResponse, len(result.Items)),
		Filtered:   result.FilteredCount,
		Candidates: result.Candidates,
	}
	for i, s := range result.Items {
		resp.Items[i] = scoredItemResponse{
			ID:         uint64(s.ItemId),
			Score:      s.FinalScore,
			Similarity: s.Similarity,
			Popularity: s.Popularity,
			Item:       newItemResponse(s.Item),
		}
	}
	return resp
}
