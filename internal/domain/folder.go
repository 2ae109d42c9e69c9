/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "strings"

// Game identifies the trading card game a folder belongs to.
type Game string

const (
	GameOPTCG     Game = "optcg"
	GameMTG       Game = "mtg"
	GameRiftbound Game = "riftbound"
	GameFFTCG     Game = "fftcg"
)

var gameNames = map[Game]string{
	GameOPTCG:     "One Piece",
	GameMTG:       "Magic: The Gathering",
	GameRiftbound: "Riftbound",
	GameFFTCG:     "Final Fantasy",
}

// Games lists the known games in display order.
func Games() []Game { return []Game{GameOPTCG, GameMTG, GameRiftbound, GameFFTCG} }

// ParseGame accepts a game code case-insensitively.
func ParseGame(s string) (Game, bool) {
	g := Game(strings.ToLower(strings.TrimSpace(s)))
	_, ok := gameNames[g]
	return g, ok
}

// DisplayName returns the human name of the game, or the code if unknown.
func (g Game) DisplayName() string {
	if n, ok := gameNames[g]; ok {
		return n
	}
	return string(g)
}

// SubCategory groups MTG folders.
type SubCategory string

const (
	SubFullDeck     SubCategory = "Full Deck"
	SubDeck         SubCategory = "Deck"
	SubTokens       SubCategory = "Tokens"
	SubLands        SubCategory = "Lands"
	SubBacks        SubCategory = "Backs"
	SubAlternatives SubCategory = "Alternatives"
	SubSideboard    SubCategory = "Sideboard"
	SubSecretLair   SubCategory = "Secret Lair"
)

// Origin tells where the scans in a folder come from.
type Origin string

const (
	OriginOfficial Origin = "official"
	OriginCustom   Origin = "custom"
	OriginProxy    Origin = "proxy"
)

// Folder is one row of the folder metadata table.
type Folder struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Bleed       float64     `json:"bleed" yaml:"bleed"`
	Game        Game        `json:"game" yaml:"game"`
	SubCategory SubCategory `json:"subCategory,omitempty" yaml:"sub_category,omitempty"`
	Author      string      `json:"author,omitempty" yaml:"author,omitempty"`
	Decklist    string      `json:"decklist,omitempty" yaml:"decklist,omitempty"`
	Origin      Origin      `json:"origin,omitempty" yaml:"origin,omitempty"`
}
