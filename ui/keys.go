package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Play     key.Binding
	Continue key.Binding
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Choose   key.Binding
	Record   key.Binding
	Listen   key.Binding
	Info     key.Binding
	Close    key.Binding
	Restart  key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Play:     key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("espacio", "audio")),
	Continue: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "continuar")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "subir")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "bajar")),
	Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "opción anterior")),
	Right:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "opción siguiente")),
	Choose:   key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "elegir")),
	Record:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "grabar")),
	Listen:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "escuchar")),
	Info:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "instrucciones")),
	Close:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cerrar")),
	Restart:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "volver a escuchar")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "salir")),
}

// withHelp relabels b for the current screen state.
func withHelp(b key.Binding, desc string) key.Binding {
	b.SetHelp(b.Help().Key, desc)
	return b
}
